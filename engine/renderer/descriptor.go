package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-rt/engine/core"
)

const descriptorHandleIncrement uint64 = 32

// DescriptorTable is a contiguous range of descriptors in a pool. Handle
// is the 8 byte value a shader record stores.
type DescriptorTable struct {
	Handle uint64
	Offset uint32
	Count  uint32
}

// DescriptorPool hands out descriptor tables from a fixed size heap. It
// is reset once per frame; running out is fatal for the frame.
type DescriptorPool struct {
	mu       sync.Mutex
	base     uint64
	capacity uint32
	used     uint32
	tables   uint32
}

func NewDescriptorPool(capacity uint32) *DescriptorPool {
	return &DescriptorPool{
		base:     uint64(core.IdentifierAquireNewID("descriptor_pool")+1) << 32,
		capacity: capacity,
	}
}

func (p *DescriptorPool) Allocate(count uint32) (DescriptorTable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if count == 0 {
		count = 1
	}
	if p.used+count > p.capacity {
		err := fmt.Errorf("%w: requested %d descriptors, %d of %d in use", core.ErrDescriptorPoolExhausted, count, p.used, p.capacity)
		core.LogError(err.Error())
		return DescriptorTable{}, err
	}
	t := DescriptorTable{
		Handle: p.base + uint64(p.used)*descriptorHandleIncrement,
		Offset: p.used,
		Count:  count,
	}
	p.used += count
	p.tables++
	return t, nil
}

func (p *DescriptorPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used = 0
	p.tables = 0
}

func (p *DescriptorPool) Used() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

func (p *DescriptorPool) Capacity() uint32 {
	return p.capacity
}
