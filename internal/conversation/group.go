// Package conversation projects the flat message set into per-contact conversations.
package conversation

import (
	"sort"
	"strings"
	"time"

	"github.com/matheus3301/wppcrm/internal/normalize"
)

// Meta is the contact metadata used for display names, keyed by contact key.
type Meta map[string]string

// Conversation is a derived view; it is recomputed on every change and never mutated.
type Conversation struct {
	ContactKey      string
	DisplayName     string
	LastMessage     string
	LastMessageTime string
	LastTimestamp   time.Time
	Messages        []normalize.Message
}

// Group partitions messages by contact key. Messages are ascending by timestamp within a
// conversation and conversations are descending by their latest timestamp, with the zero
// time sorting as earliest. Ties keep first-appearance order, so the same snapshot always
// renders the same list.
func Group(messages []normalize.Message, meta Meta) []Conversation {
	index := make(map[string]int)
	var convs []Conversation
	for _, m := range messages {
		i, ok := index[m.ContactKey]
		if !ok {
			i = len(convs)
			index[m.ContactKey] = i
			convs = append(convs, Conversation{ContactKey: m.ContactKey})
		}
		convs[i].Messages = append(convs[i].Messages, m)
	}

	for i := range convs {
		c := &convs[i]
		sort.SliceStable(c.Messages, func(a, b int) bool {
			return c.Messages[a].Timestamp.Before(c.Messages[b].Timestamp)
		})
		tail := c.Messages[len(c.Messages)-1]
		c.LastMessage = tail.Text
		c.LastMessageTime = tail.DisplayTime
		c.LastTimestamp = tail.Timestamp
		c.DisplayName = displayName(c.ContactKey, c.Messages, meta)
	}

	sort.SliceStable(convs, func(a, b int) bool {
		return convs[a].LastTimestamp.After(convs[b].LastTimestamp)
	})
	return convs
}

func displayName(key string, msgs []normalize.Message, meta Meta) string {
	if name := meta[key]; name != "" {
		return name
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Name != "" && msgs[i].Sender == normalize.SenderUser {
			return msgs[i].Name
		}
	}
	return "Client " + key
}

// Filter keeps conversations whose display name, contact key or last message contains query,
// case-insensitively. An empty query returns the input unchanged.
func Filter(convs []Conversation, query string) []Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return convs
	}
	var out []Conversation
	for _, c := range convs {
		if strings.Contains(strings.ToLower(c.DisplayName), q) ||
			strings.Contains(c.ContactKey, q) ||
			strings.Contains(strings.ToLower(c.LastMessage), q) {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the conversation for key.
func Find(convs []Conversation, key string) (Conversation, bool) {
	for _, c := range convs {
		if c.ContactKey == key {
			return c, true
		}
	}
	return Conversation{}, false
}
