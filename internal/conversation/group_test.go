package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/wppcrm/internal/normalize"
)

var t0 = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func msg(id, key, text string, offset time.Duration) normalize.Message {
	ts := t0.Add(offset)
	return normalize.Message{ID: id, ContactKey: key, Text: text, Sender: normalize.SenderUser, Timestamp: ts, DisplayTime: ts.Format("15:04")}
}

func TestGroupTwoContacts(t *testing.T) {
	msgs := []normalize.Message{
		msg("a2", "A", "a second", 3*time.Minute),
		msg("b1", "B", "b first", 1*time.Minute),
		msg("a1", "A", "a first", 0),
		msg("b2", "B", "b second", 5*time.Minute),
	}

	convs := Group(msgs, nil)
	require.Len(t, convs, 2)

	assert.Equal(t, "B", convs[0].ContactKey, "latest conversation first")
	assert.Equal(t, "A", convs[1].ContactKey)

	for _, c := range convs {
		for _, m := range c.Messages {
			assert.Equal(t, c.ContactKey, m.ContactKey)
		}
		for i := 1; i < len(c.Messages); i++ {
			assert.False(t, c.Messages[i].Timestamp.Before(c.Messages[i-1].Timestamp))
		}
	}
	assert.Equal(t, "b second", convs[0].LastMessage)
	assert.Equal(t, "12:05", convs[0].LastMessageTime)
}

func TestBulkFetchScenario(t *testing.T) {
	n := normalize.New(time.UTC)
	rows := []normalize.Row{
		{"id": "1", "phone": "5511999990000", "message": "hi", "created_at": "2026-02-10T12:00:00Z"},
		{"id": "2", "phone": "5511999990000", "message": "yo", "created_at": "2026-02-10T12:01:00Z"},
	}
	var msgs []normalize.Message
	for _, r := range rows {
		msgs = append(msgs, n.Normalize(r))
	}

	convs := Group(msgs, nil)
	require.Len(t, convs, 1)
	assert.Equal(t, "yo", convs[0].LastMessage)
	assert.Equal(t, "Client 5511999990000", convs[0].DisplayName)
}

func TestZeroTimestampSortsEarliestAndTiesAreStable(t *testing.T) {
	zero := normalize.Message{ID: "z", ContactKey: "Z", Text: "no time"}
	msgs := []normalize.Message{
		zero,
		msg("t1", "T1", "tie one", time.Minute),
		msg("t2", "T2", "tie two", time.Minute),
		msg("n", "N", "newest", time.Hour),
	}

	for range 5 {
		convs := Group(msgs, nil)
		keys := []string{}
		for _, c := range convs {
			keys = append(keys, c.ContactKey)
		}
		assert.Equal(t, []string{"N", "T1", "T2", "Z"}, keys)
	}
}

func TestDisplayNamePrecedence(t *testing.T) {
	named := msg("1", "A", "oi", 0)
	named.Name = "Maria"
	agent := msg("2", "A", "ola", time.Minute)
	agent.Sender = normalize.SenderAgent
	agent.Name = "Operator"

	assert.Equal(t, "Maria", Group([]normalize.Message{named, agent}, nil)[0].DisplayName)
	assert.Equal(t, "Maria Silva", Group([]normalize.Message{named}, Meta{"A": "Maria Silva"})[0].DisplayName)
	assert.Equal(t, "Client B", Group([]normalize.Message{msg("3", "B", "x", 0)}, nil)[0].DisplayName)
}

func TestFilter(t *testing.T) {
	convs := Group([]normalize.Message{
		msg("1", "5511", "pedido pronto", 0),
		msg("2", "5521", "boa tarde", time.Minute),
	}, Meta{"5521": "Joana"})

	assert.Len(t, Filter(convs, ""), 2)
	assert.Len(t, Filter(convs, "JOANA"), 1)
	assert.Len(t, Filter(convs, "pedido"), 1)
	assert.Len(t, Filter(convs, "5511"), 1)
	assert.Empty(t, Filter(convs, "nada"))

	c, ok := Find(convs, "5511")
	assert.True(t, ok)
	assert.Equal(t, "pedido pronto", c.LastMessage)
}
