package types

import "encoding/binary"

// ParamId identifies a logical parameter. It is a concrete int32 type, so
// the partitioner has one well-defined byte encoding to hash.
type ParamId int32

// Bytes returns the little-endian encoding used by the hash partitioner.
func (p ParamId) Bytes() []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(p))
	return buf[:]
}

// PartitionIndex is a 0-based slot in [0, W) or [0, S).
type PartitionIndex int32

// UID tags a single worker/server message exchange, mostly useful for
// logging and for the fuzzy end-to-end scenarios.
type UID string
