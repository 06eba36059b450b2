package software

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

type CommandKind int

const (
	CommandBuildBottomLevel CommandKind = iota
	CommandRefitBottomLevel
	CommandBuildTopLevel
	CommandRefitTopLevel
	CommandBarrier
	CommandSetState
	CommandBindGlobals
	CommandTraceRays
)

func (k CommandKind) String() string {
	switch k {
	case CommandBuildBottomLevel:
		return "build-blas"
	case CommandRefitBottomLevel:
		return "refit-blas"
	case CommandBuildTopLevel:
		return "build-tlas"
	case CommandRefitTopLevel:
		return "refit-tlas"
	case CommandBarrier:
		return "barrier"
	case CommandSetState:
		return "set-state"
	case CommandBindGlobals:
		return "bind-globals"
	case CommandTraceRays:
		return "trace-rays"
	}
	return "unknown"
}

// Command is one recorded operation. Fence is zero until submitted.
type Command struct {
	Kind      CommandKind
	Structure *metadata.AccelerationStructure
	Dispatch  metadata.DispatchDesc
	Fence     uint64
}

/**
 * @brief Stream executes work as it is recorded and keeps the command
 * log. Acceleration structures built on it must see a barrier before a
 * trace reads them.
 */
type Stream struct {
	device         *Device
	commands       []Command
	unsubmitted    int
	pendingBarrier map[uint64]*metadata.AccelerationStructure
	state          *metadata.StateObject
	globals        *renderer.ParameterBlock
}

func newStream(d *Device) *Stream {
	return &Stream{
		device:         d,
		pendingBarrier: make(map[uint64]*metadata.AccelerationStructure),
	}
}

func (s *Stream) record(c Command) {
	s.commands = append(s.commands, c)
	s.unsubmitted++
}

func (s *Stream) BuildAccelerationStructure(inputs *metadata.AccelerationStructureInputs, dst, src *metadata.AccelerationStructure, scratch *metadata.Buffer) error {
	if inputs == nil || dst == nil {
		return fmt.Errorf("%w: build without inputs or destination", core.ErrDeviceFailure)
	}
	if dst.Type != inputs.Type {
		return fmt.Errorf("%w: build type does not match destination structure", core.ErrDeviceFailure)
	}
	ds, ok := dst.InternalData.(*structure)
	if !ok {
		return fmt.Errorf("%w: destination structure %d was destroyed", core.ErrDeviceFailure, dst.ID)
	}

	update := inputs.Flags.Has(metadata.BuildFlagPerformUpdate)
	info := s.device.GetAccelerationStructurePrebuildInfo(inputs)
	need := info.ScratchDataSize
	if update {
		need = info.UpdateScratchSize
	}
	if scratch == nil || scratch.Size < need {
		return fmt.Errorf("%w: scratch buffer too small, need %d bytes", core.ErrDeviceFailure, need)
	}
	if info.ResultDataMaxSize > dst.Size {
		return fmt.Errorf("%w: destination holds %d bytes, build needs %d", core.ErrDeviceFailure, dst.Size, info.ResultDataMaxSize)
	}

	if update {
		if src == nil || !src.Built {
			return fmt.Errorf("%w: update without a built source structure", core.ErrDeviceFailure)
		}
		if !src.Flags.Has(metadata.BuildFlagAllowUpdate) {
			return fmt.Errorf("%w: source structure %d was not created with allow-update", core.ErrDeviceFailure, src.ID)
		}
		if src != dst {
			ds = src.InternalData.(*structure).clone()
			dst.InternalData = ds
		}
	}

	var err error
	kind := CommandBuildBottomLevel
	if inputs.Type == metadata.AccelerationStructureTopLevel {
		kind = CommandBuildTopLevel
		err = s.device.buildTopLevel(ds, inputs, update)
	} else {
		err = s.device.buildBottomLevel(ds, inputs, update)
	}
	if err != nil {
		return err
	}
	if update {
		kind++
		dst.Updates++
	}
	dst.Built = true
	s.pendingBarrier[dst.Handle] = dst
	s.record(Command{Kind: kind, Structure: dst})
	return nil
}

// AccelerationStructureBarrier orders builds of as before later reads.
// A nil structure is a global barrier.
func (s *Stream) AccelerationStructureBarrier(as *metadata.AccelerationStructure) {
	if as == nil {
		s.pendingBarrier = make(map[uint64]*metadata.AccelerationStructure)
	} else {
		delete(s.pendingBarrier, as.Handle)
	}
	s.record(Command{Kind: CommandBarrier, Structure: as})
}

func (s *Stream) SetRayTracingState(state *metadata.StateObject) {
	s.state = state
	s.record(Command{Kind: CommandSetState})
}

func (s *Stream) BindGlobals(block *renderer.ParameterBlock) error {
	if block == nil {
		return fmt.Errorf("%w: nil global block", core.ErrDeviceFailure)
	}
	s.globals = block
	s.record(Command{Kind: CommandBindGlobals, Structure: s.boundTopLevel()})
	return nil
}

func (s *Stream) boundTopLevel() *metadata.AccelerationStructure {
	if s.globals == nil || s.globals.Reflection() == nil {
		return nil
	}
	for _, res := range s.globals.Reflection().Resources {
		if res.Type != metadata.ShaderResourceAccelerationStructure {
			continue
		}
		if as := s.globals.GetAccelerationStructure(res.Location, 0); as != nil {
			return as
		}
	}
	return nil
}

// BoundTopLevel returns the structure bound by the last BindGlobals.
func (s *Stream) BoundTopLevel() *metadata.AccelerationStructure {
	return s.boundTopLevel()
}

func (s *Stream) TraceRays(desc metadata.DispatchDesc) error {
	if s.state == nil {
		return fmt.Errorf("%w: trace without a ray tracing state", core.ErrDeviceFailure)
	}
	if desc.RayGen.Count() != 1 {
		return fmt.Errorf("%w: raygen region holds %d records", core.ErrDeviceFailure, desc.RayGen.Count())
	}
	if len(s.pendingBarrier) > 0 {
		return fmt.Errorf("%w: %d acceleration structures read without a barrier", core.ErrDeviceFailure, len(s.pendingBarrier))
	}
	desc.Extent = desc.Extent.Normalized()
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return fmt.Errorf("%w: empty dispatch extent %dx%dx%d", core.ErrDeviceFailure, desc.Extent.Width, desc.Extent.Height, desc.Extent.Depth)
	}

	hitRecords := desc.Hit.Count()
	if tlas := s.boundTopLevel(); tlas != nil && hitRecords > 0 {
		if !tlas.Built {
			return fmt.Errorf("%w: bound top level structure %d is not built", core.ErrDeviceFailure, tlas.ID)
		}
		ts, ok := tlas.InternalData.(*structure)
		if !ok {
			return fmt.Errorf("%w: bound top level structure %d was destroyed", core.ErrDeviceFailure, tlas.ID)
		}
		stride := uint64(desc.HitStride)
		if stride == 0 {
			stride = 1
		}
		for i, in := range ts.instances {
			last := uint64(in.desc.HitGroupOffset) + uint64(in.geometries)*stride
			if last > hitRecords {
				return fmt.Errorf("%w: instance %d addresses hit record %d, table holds %d",
					core.ErrDeviceFailure, i, last-1, hitRecords)
			}
		}
	}
	s.record(Command{Kind: CommandTraceRays, Dispatch: desc})
	return nil
}

func (s *Stream) NextFenceValue() uint64 {
	return s.device.nextFence()
}

func (s *Stream) Submit() (uint64, error) {
	fence := s.device.signal()
	for i := len(s.commands) - s.unsubmitted; i < len(s.commands); i++ {
		s.commands[i].Fence = fence
	}
	s.unsubmitted = 0
	if keep := s.device.options.CommandHistory; keep > 0 && len(s.commands) > keep {
		s.commands = append([]Command(nil), s.commands[len(s.commands)-keep:]...)
	}
	return fence, nil
}

// Commands returns the command log.
func (s *Stream) Commands() []Command {
	return s.commands
}

// CountCommands returns how many commands of kind were recorded.
func (s *Stream) CountCommands(kind CommandKind) int {
	n := 0
	for _, c := range s.commands {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// LastDispatch returns the most recent trace call.
func (s *Stream) LastDispatch() (metadata.DispatchDesc, bool) {
	for i := len(s.commands) - 1; i >= 0; i-- {
		if s.commands[i].Kind == CommandTraceRays {
			return s.commands[i].Dispatch, true
		}
	}
	return metadata.DispatchDesc{}, false
}

var _ renderer.CommandStream = (*Stream)(nil)
