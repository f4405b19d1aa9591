// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import "encoding/binary"

// Partition table layout constants, shared between the table-building
// kernel and the subblock blur kernel. They size the tables at build time;
// both are safe to raise if the engine ever needs larger radii or finer
// decompositions.
const (
	// MaxRadius is the largest blur radius representable in a partition
	// table (and, by extension, in a routing table).
	MaxRadius = 512

	// MaxBlockCount is the largest per-line block count representable in
	// a partition table.
	MaxBlockCount = 1024

	// PartitionEntrySize is the byte size of one PartitionEntry on the
	// device: four signed 16-bit fields.
	PartitionEntrySize = 8

	// PartitionTableSize is the byte size of one full partition table.
	PartitionTableSize = MaxRadius * MaxBlockCount * PartitionEntrySize
)

// PartitionEntry describes how far one block must read beyond its own
// extent to blur at a given radius: whole neighboring blocks plus leftover
// pixels, on each side. The fields are signed so block indices can wrap
// across the image edge.
//
// The in-memory layout (four little-endian int16s) is the wire format
// between the table-building kernel and the subblock blur kernel; the Go
// struct exists for host-side debugging and tests and must stay
// byte-compatible.
type PartitionEntry struct {
	LeftBlocks  int16
	LeftPixels  int16
	RightBlocks int16
	RightPixels int16
}

// PutPartitionEntry encodes e into buf, which must hold at least
// PartitionEntrySize bytes.
func PutPartitionEntry(buf []byte, e PartitionEntry) {
	binary.LittleEndian.PutUint16(buf[0:], uint16(e.LeftBlocks))
	binary.LittleEndian.PutUint16(buf[2:], uint16(e.LeftPixels))
	binary.LittleEndian.PutUint16(buf[4:], uint16(e.RightBlocks))
	binary.LittleEndian.PutUint16(buf[6:], uint16(e.RightPixels))
}

// GetPartitionEntry decodes an entry from buf.
func GetPartitionEntry(buf []byte) PartitionEntry {
	return PartitionEntry{
		LeftBlocks:  int16(binary.LittleEndian.Uint16(buf[0:])),
		LeftPixels:  int16(binary.LittleEndian.Uint16(buf[2:])),
		RightBlocks: int16(binary.LittleEndian.Uint16(buf[4:])),
		RightPixels: int16(binary.LittleEndian.Uint16(buf[6:])),
	}
}

// PartitionIndex returns the entry offset (in entries) for (radius, block).
func PartitionIndex(radius, block int) int {
	return (radius-1)*MaxBlockCount + block
}
