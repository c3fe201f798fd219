// Package normalize maps heterogeneous message rows into the canonical Message shape.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender classifies who authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
	SenderBot   Sender = "bot"
)

// LocalIDPrefix marks ids generated for optimistic entries. Remote ids never carry it.
const LocalIDPrefix = "local-"

// GeneratedIDPrefix marks ids derived from row content when the row had none.
const GeneratedIDPrefix = "gen-"

const unknownContact = "unknown"

// generatedIDSpace namespaces content-derived ids.
var generatedIDSpace = uuid.MustParse("6f1c7b6e-3a0f-4f57-9df4-9b8f3f0e21aa")

// Row is one remote row as decoded from JSON.
type Row map[string]any

// Message is the canonical shape every view works with.
type Message struct {
	ID              string    `json:"id"`
	ClientMessageID string    `json:"clientMessageId,omitempty"`
	ContactKey      string    `json:"contactKey"`
	Name            string    `json:"name,omitempty"`
	Sender          Sender    `json:"sender"`
	Text            string    `json:"text"`
	Status          string    `json:"status,omitempty"`
	Source          string    `json:"source,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	DisplayTime     string    `json:"displayTime"`
	Pending         bool      `json:"pending,omitempty"`
	Failed          bool      `json:"failed,omitempty"`
}

// Optimistic reports whether m is a local placeholder awaiting confirmation.
func (m Message) Optimistic() bool {
	return strings.HasPrefix(m.ID, LocalIDPrefix)
}

// Normalizer turns rows into Messages. The zero value formats display times in UTC.
type Normalizer struct {
	Location *time.Location
}

// New returns a Normalizer that formats display times in loc.
func New(loc *time.Location) *Normalizer {
	return &Normalizer{Location: loc}
}

// Normalize produces exactly one Message from row. It never fails and is deterministic.
func (n *Normalizer) Normalize(row Row) Message {
	m := Message{
		ClientMessageID: row.first(ClientMessageIDFields),
		Name:            row.first(NameFields),
		Text:            row.first(TextFields),
		Status:          row.first(StatusFields),
		Source:          row.first(SourceFields),
		Timestamp:       ParseTime(row.raw(TimeFields)),
	}

	declared := row.first(IDFields)
	m.ID = declared
	if m.ID == "" {
		m.ID = generatedID(row)
	}

	switch {
	case row.first(PhoneFields) != "":
		m.ContactKey = row.first(PhoneFields)
	case row.first(ClientFields) != "":
		m.ContactKey = row.first(ClientFields)
	case declared != "":
		m.ContactKey = declared
	default:
		m.ContactKey = unknownContact
	}

	m.Sender = Classify(m.Status, m.Text, truthy(row.raw(FromMeFields)))
	m.DisplayTime = n.DisplayTime(m.Timestamp)
	return m
}

// DisplayTime formats t as hour:minute, or "" for the zero time.
func (n *Normalizer) DisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	loc := time.UTC
	if n != nil && n.Location != nil {
		loc = n.Location
	}
	return t.In(loc).Format("15:04")
}

// Classify decides the sender from the status, the text and the direction flag.
func Classify(status, text string, fromMe bool) Sender {
	if strings.Contains(strings.ToLower(status), botStatusMarker) {
		return SenderBot
	}
	trimmed := strings.TrimSpace(text)
	for _, p := range botTextPrefixes {
		if strings.HasPrefix(strings.ToLower(trimmed), p) {
			return SenderBot
		}
	}
	if fromMe {
		return SenderAgent
	}
	return SenderUser
}

func (r Row) raw(keys []string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// first returns the first candidate that stringifies to something non-empty.
func (r Row) first(keys []string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	case float64:
		return x != 0
	case json.Number:
		f, _ := x.Float64()
		return f != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	}
	return false
}

// generatedID derives a stable id from the row content. encoding/json sorts map keys, so the
// same row always hashes to the same id and a redelivered row deduplicates.
func generatedID(row Row) string {
	b, err := json.Marshal(row)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", map[string]any(row)))
	}
	return GeneratedIDPrefix + uuid.NewSHA1(generatedIDSpace, b).String()
}
