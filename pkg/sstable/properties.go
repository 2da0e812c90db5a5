package sstable

import (
	"encoding/json"
	"fmt"
	"time"

	"spatiallsm/pkg/dberrors"
)

// Properties describe a finished table. They are stored as JSON in the
// PropertiesBlock meta block.
type Properties struct {
	SessionID   string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
	Entries     uint64    `json:"entries"`
	DataBlocks  uint64    `json:"data_blocks"`
	IndexNodes  int       `json:"index_nodes"`
	Index       string    `json:"index"`
	IndexHeight int       `json:"index_height"`
	BoxSource   string    `json:"box_source,omitempty"`
	Compression string    `json:"compression"`
	// MaxSeqN is the newest sequence number stored in the table.
	MaxSeqN uint64 `json:"max_seq_n,omitempty"`
}

func (p Properties) encode() ([]byte, error) {
	return json.Marshal(p)
}

func decodeProperties(data []byte) (Properties, error) {
	var p Properties
	if err := json.Unmarshal(data, &p); err != nil {
		return Properties{}, fmt.Errorf("%w: table properties: %v", dberrors.ErrCorruption, err)
	}
	return p, nil
}
