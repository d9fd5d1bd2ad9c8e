package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageBlock is one payload variant attached to an alert. Delivery uses the
// first block only; additional blocks are stored untouched.
type MessageBlock struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// IsEmpty reports whether the block carries no renderable content.
func (b MessageBlock) IsEmpty() bool {
	return strings.TrimSpace(b.Title) == "" && strings.TrimSpace(b.Body) == ""
}

// BlockList is an ordered sequence of message blocks persisted as JSONB.
type BlockList []MessageBlock

// First returns the delivery payload block.
func (l BlockList) First() MessageBlock {
	if len(l) == 0 {
		return MessageBlock{}
	}
	return l[0]
}

// Value marshals the list into JSON for Postgres.
func (l BlockList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	buf, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes JSONB into the list.
func (l *BlockList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("blocklist: unsupported scan type %T", value)
	}

	var result BlockList
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*l = result
	return nil
}
