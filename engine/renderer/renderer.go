package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
)

// Renderer owns the device and the single command stream frames are
// recorded into.
type Renderer struct {
	device      Device
	stream      CommandStream
	frameNumber uint64
	inFrame     bool
	lastFence   uint64
}

func New(device Device) *Renderer {
	core.LogInfo("renderer created on device '%s'", device.Name())
	return &Renderer{
		device: device,
		stream: device.CreateCommandStream(),
	}
}

func (r *Renderer) Device() Device {
	return r.device
}

func (r *Renderer) Stream() CommandStream {
	return r.stream
}

func (r *Renderer) FrameNumber() uint64 {
	return r.frameNumber
}

// LastFence is the fence value signaled by the most recent EndFrame.
func (r *Renderer) LastFence() uint64 {
	return r.lastFence
}

func (r *Renderer) BeginFrame(deltaTime float64) error {
	if r.inFrame {
		return fmt.Errorf("frame %d already begun", r.frameNumber)
	}
	r.inFrame = true
	return nil
}

// EndFrame submits the recorded work.
func (r *Renderer) EndFrame(deltaTime float64) error {
	if !r.inFrame {
		return fmt.Errorf("EndFrame called without BeginFrame")
	}
	r.inFrame = false
	fence, err := r.stream.Submit()
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	r.lastFence = fence
	r.frameNumber++
	core.MetricsUpdate(deltaTime)
	return nil
}

func (r *Renderer) Shutdown() error {
	return r.device.WaitIdle()
}
