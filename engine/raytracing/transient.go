package raytracing

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/containers"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

type transientEntry struct {
	name    string
	fence   uint64
	release func()
}

/**
 * @brief TransientPool keeps scratch buffers, instance uploads and
 * replaced structures alive until the device has finished the
 * submission that used them.
 */
type TransientPool struct {
	device renderer.Device
	ring   *containers.RingQueue[transientEntry]
}

func NewTransientPool(device renderer.Device, size int) *TransientPool {
	return &TransientPool{
		device: device,
		ring:   containers.NewRingQueue[transientEntry](size),
	}
}

// Allocate creates a buffer that must later be handed to RetireBuffer.
func (p *TransientPool) Allocate(name string, size uint64, usage metadata.BufferUsage) (*metadata.Buffer, error) {
	if size == 0 {
		size = 1
	}
	b, err := p.device.CreateBuffer(name, size, usage)
	if err != nil {
		return nil, fmt.Errorf("%w: allocating %s (%d bytes): %v", core.ErrDeviceFailure, name, size, err)
	}
	return b, nil
}

func (p *TransientPool) RetireBuffer(b *metadata.Buffer, fence uint64) {
	p.Retire(b.Name, fence, func() { p.device.DestroyBuffer(b) })
}

func (p *TransientPool) RetireAccelerationStructure(as *metadata.AccelerationStructure, fence uint64) {
	p.Retire(fmt.Sprintf("acceleration structure %d", as.ID), fence, func() { p.device.DestroyAccelerationStructure(as) })
}

// Retire schedules release once fence completes. A full ring waits for
// the device to go idle first.
func (p *TransientPool) Retire(name string, fence uint64, release func()) {
	p.Collect()
	if p.ring.IsFull() {
		core.LogDebug("transient ring full, waiting for the device")
		if err := p.device.WaitIdle(); err != nil {
			core.LogError(err.Error())
		}
		p.Collect()
	}
	if err := p.ring.Enqueue(transientEntry{name: name, fence: fence, release: release}); err != nil {
		// still full after idle means the fence never completes, release now
		core.LogWarn("releasing %s immediately: %s", name, err.Error())
		release()
	}
}

// Collect releases every entry whose fence completed and returns how many.
func (p *TransientPool) Collect() int {
	done := p.device.CompletedFenceValue()
	n := 0
	for !p.ring.IsEmpty() {
		e, err := p.ring.Peek()
		if err != nil || e.fence > done {
			break
		}
		_, _ = p.ring.Dequeue()
		e.release()
		n++
	}
	return n
}

func (p *TransientPool) Pending() int {
	return p.ring.Len()
}

// Flush waits for the device and releases everything, including entries
// retired against a fence that was never submitted.
func (p *TransientPool) Flush() error {
	if err := p.device.WaitIdle(); err != nil {
		return err
	}
	for !p.ring.IsEmpty() {
		e, err := p.ring.Dequeue()
		if err != nil {
			break
		}
		e.release()
	}
	return nil
}
