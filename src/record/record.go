// Package record defines the external collaborator the B-tree index
// delegates record schema and serialization to. The index never
// inspects a record's contents; it only asks for its fixed size and
// its binary form.
package record

import "encoding"

// Record is anything with a fixed-size binary encoding. The B-tree
// stores the (page, offset) coordinate it was written at and otherwise
// treats the bytes as opaque.
type Record interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	// Size is the fixed number of bytes MarshalBinary produces. All
	// records sharing a heap file must agree on this value.
	Size() int
}
