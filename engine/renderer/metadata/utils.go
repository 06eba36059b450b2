package metadata

import "math"

const (
	/** @brief Marks an id slot that holds no object. */
	InvalidID   uint32 = math.MaxUint32
	InvalidID64 uint64 = math.MaxUint64
)

func GetAligned(operand, granularity uint64) uint64 {
	return (operand + (granularity - 1)) &^ (granularity - 1)
}

func GetAlignedRange(offset, size, granularity uint64) *MemoryRange {
	return &MemoryRange{
		Offset: GetAligned(offset, granularity),
		Size:   GetAligned(size, granularity),
	}
}

// MemoryRange is a byte range inside a buffer.
type MemoryRange struct {
	Offset uint64
	Size   uint64
}
