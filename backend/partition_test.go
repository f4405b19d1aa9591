// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import "testing"

func TestPartitionEntryRoundTrip(t *testing.T) {
	e := PartitionEntry{LeftBlocks: 3, LeftPixels: -17, RightBlocks: 2, RightPixels: 511}
	buf := make([]byte, PartitionEntrySize)
	PutPartitionEntry(buf, e)
	if got := GetPartitionEntry(buf); got != e {
		t.Fatalf("round trip: got %+v, want %+v", got, e)
	}
}

func TestPartitionIndex(t *testing.T) {
	if got := PartitionIndex(1, 0); got != 0 {
		t.Errorf("PartitionIndex(1, 0) = %d, want 0", got)
	}
	if got := PartitionIndex(2, 0); got != MaxBlockCount {
		t.Errorf("PartitionIndex(2, 0) = %d, want %d", got, MaxBlockCount)
	}
	last := PartitionIndex(MaxRadius, MaxBlockCount-1)
	if (last+1)*PartitionEntrySize != PartitionTableSize {
		t.Errorf("last entry %d does not end at table size %d", last, PartitionTableSize)
	}
}
