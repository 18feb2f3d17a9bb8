package record

import (
	"encoding/binary"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// BSONRecord is a Record implementation backed by BSON encoding. It
// gives callers a ready-made, fixed-size record type; the core engine
// never imports this type directly.
type BSONRecord struct {
	Fields map[string]interface{}

	// size is the fixed on-disk footprint in bytes, including a uint32
	// length prefix. BSON documents larger than size-4 do not fit and
	// MarshalBinary returns an error.
	size int
}

// NewBSONRecord creates a record with a fixed total footprint of size
// bytes (including the 4-byte length prefix).
func NewBSONRecord(size int, fields map[string]interface{}) *BSONRecord {
	return &BSONRecord{Fields: fields, size: size}
}

func (r *BSONRecord) Size() int {
	return r.size
}

func (r *BSONRecord) MarshalBinary() ([]byte, error) {
	doc, err := bson.Marshal(r.Fields)
	if err != nil {
		return nil, fmt.Errorf("record: bson marshal: %w", err)
	}
	if len(doc)+4 > r.size {
		return nil, fmt.Errorf("record: bson document of %d bytes exceeds fixed size %d", len(doc), r.size)
	}
	out := make([]byte, r.size)
	binary.LittleEndian.PutUint32(out[:4], uint32(len(doc)))
	copy(out[4:], doc)
	return out, nil
}

func (r *BSONRecord) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("record: bson payload too short: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint32(data[:4])
	if int(n)+4 > len(data) {
		return fmt.Errorf("record: bson length %d exceeds payload of %d bytes", n, len(data)-4)
	}
	fields := make(map[string]interface{})
	if n > 0 {
		if err := bson.Unmarshal(data[4:4+n], &fields); err != nil {
			return fmt.Errorf("record: bson unmarshal: %w", err)
		}
	}
	r.Fields = fields
	if r.size == 0 {
		r.size = len(data)
	}
	return nil
}
