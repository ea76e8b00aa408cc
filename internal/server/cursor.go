package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor is the opaque keyset position for task pagination: the sort key
// (created_at or completed_at depending on partition) plus the row ID as
// a tiebreaker.
type Cursor struct {
	Key string `json:"k"`
	ID  string `json:"id"`
}

// Encode serializes the cursor for use in a next_page_url.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an encoded cursor. Clients treat cursors as opaque;
// anything undecodable is a bad request.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	if c.Key == "" || c.ID == "" {
		return Cursor{}, fmt.Errorf("decode cursor: missing fields")
	}
	return c, nil
}
