// Package realtime pushes newly stored message rows to connected dashboards over websockets
// and provides the reconnecting subscriber the dashboards use to receive them.
package realtime

import (
	"encoding/json"

	"github.com/matheus3301/wppcrm/internal/normalize"
	"github.com/matheus3301/wppcrm/internal/store"
)

// FrameInsert is the only frame type the feed emits.
const FrameInsert = "insert"

// Frame is one websocket message. Row is the stored row in its bulk-fetch JSON shape, so a
// subscriber can feed it through the same normalizer as fetched rows.
type Frame struct {
	Type string          `json:"type"`
	Row  json.RawMessage `json:"row"`
}

// EncodeInsert builds the frame for a stored row.
func EncodeInsert(m store.Message) ([]byte, error) {
	row, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: FrameInsert, Row: row})
}

// DecodeRow extracts the row of an insert frame. ok is false for other frame types.
func DecodeRow(data []byte) (row normalize.Row, ok bool, err error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false, err
	}
	if f.Type != FrameInsert || len(f.Row) == 0 {
		return nil, false, nil
	}
	if err := json.Unmarshal(f.Row, &row); err != nil {
		return nil, false, err
	}
	return row, true, nil
}
