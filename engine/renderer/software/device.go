package software

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

const (
	addressAlignment     uint64 = 256
	nodeSize             uint64 = 64
	structureHeaderSize  uint64 = 256
	scratchBytesPerItem  uint64 = 32
	defaultIdentifierLen uint32 = 32
)

// Options configure the reference device.
type Options struct {
	Name string
	// ProgramIdentifierSize defaults to 32 bytes.
	ProgramIdentifierSize uint32
	// FenceLatency is how many submissions the device lags behind.
	FenceLatency uint64
	// MaxAccelerationStructures makes creation fail once exceeded. Zero is unlimited.
	MaxAccelerationStructures int
	// CommandHistory caps how many submitted commands the stream log
	// keeps. Zero keeps all of them.
	CommandHistory int
}

// structure is the CPU side of an acceleration structure.
type structure struct {
	asType        metadata.AccelerationStructureType
	bvh           *bvh
	geometryCount uint32
	triangles     []triangle
	instances     []instance
}

type triangle struct {
	v         [3]math.Vec3
	geometry  uint32
	primitive uint32
}

type instance struct {
	desc       metadata.InstanceDesc
	toWorld    math.Mat4
	toObject   math.Mat4
	blas       *structure
	geometries uint32
}

/**
 * @brief A CPU reference implementation of renderer.Device. Builds real
 * bounding volume hierarchies, refits them in place, and can cast rays
 * so the hierarchy and instance layout can be checked without a GPU.
 */
type Device struct {
	mu      sync.Mutex
	options Options

	nextAddress uint64
	buffers     map[uint32]*metadata.Buffer
	structures  map[uint64]*metadata.AccelerationStructure
	states      map[uint32]*metadata.StateObject

	submittedFence uint64
	completedFence uint64
}

func NewDevice(options Options) *Device {
	if options.Name == "" {
		options.Name = "software"
	}
	if options.ProgramIdentifierSize == 0 {
		options.ProgramIdentifierSize = defaultIdentifierLen
	}
	return &Device{
		options:     options,
		nextAddress: addressAlignment,
		buffers:     make(map[uint32]*metadata.Buffer),
		structures:  make(map[uint64]*metadata.AccelerationStructure),
		states:      make(map[uint32]*metadata.StateObject),
	}
}

func (d *Device) Name() string {
	return d.options.Name
}

func (d *Device) ProgramIdentifierSize() uint32 {
	return d.options.ProgramIdentifierSize
}

func (d *Device) ShaderRecordAlignment() uint32 {
	return 32
}

func (d *Device) ShaderTableAlignment() uint32 {
	return 64
}

func (d *Device) allocateAddress(size uint64) uint64 {
	addr := d.nextAddress
	d.nextAddress = metadata.GetAligned(addr+size+1, addressAlignment)
	return addr
}

func (d *Device) CreateBuffer(name string, size uint64, usage metadata.BufferUsage) (*metadata.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := &metadata.Buffer{
		Name:  name,
		Size:  size,
		Usage: usage,
		Data:  make([]byte, size),
	}
	b.ID = core.IdentifierAquireNewID(b)
	b.DeviceAddress = d.allocateAddress(size)
	d.buffers[b.ID] = b
	return b, nil
}

func (d *Device) WriteBuffer(buffer *metadata.Buffer, offset uint64, data []byte) error {
	if buffer == nil {
		return fmt.Errorf("%w: write to nil buffer", core.ErrDeviceFailure)
	}
	if offset+uint64(len(data)) > uint64(len(buffer.Data)) {
		return fmt.Errorf("%w: write [%d,%d) past the end of buffer '%s' (%d bytes)",
			core.ErrDeviceFailure, offset, offset+uint64(len(data)), buffer.Name, len(buffer.Data))
	}
	copy(buffer.Data[offset:], data)
	return nil
}

func (d *Device) DestroyBuffer(buffer *metadata.Buffer) {
	if buffer == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[buffer.ID]; !ok {
		return
	}
	delete(d.buffers, buffer.ID)
	if err := core.IdentifierReleaseID(buffer.ID); err != nil {
		core.LogWarn(err.Error())
	}
	buffer.Data = nil
}

// LiveBuffers is the number of buffers created and not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

func (d *Device) GetAccelerationStructurePrebuildInfo(inputs *metadata.AccelerationStructureInputs) metadata.PrebuildInfo {
	items := uint64(inputs.InstanceCount)
	if inputs.Type == metadata.AccelerationStructureBottomLevel {
		items = 0
		for _, g := range inputs.Geometries {
			if g.IndexCount > 0 {
				items += uint64(g.IndexCount / 3)
			} else {
				items += uint64(g.VertexCount / 3)
			}
		}
	}
	if items == 0 {
		items = 1
	}
	return metadata.PrebuildInfo{
		ResultDataMaxSize: structureHeaderSize + 2*items*nodeSize,
		ScratchDataSize:   items * scratchBytesPerItem,
		UpdateScratchSize: items * scratchBytesPerItem / 2,
	}
}

func (d *Device) CreateAccelerationStructure(asType metadata.AccelerationStructureType, size uint64, flags metadata.BuildFlags) (*metadata.AccelerationStructure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.options.MaxAccelerationStructures > 0 && len(d.structures) >= d.options.MaxAccelerationStructures {
		return nil, fmt.Errorf("%w: out of acceleration structure memory (%d live)", core.ErrDeviceFailure, len(d.structures))
	}
	as := &metadata.AccelerationStructure{
		Type:  asType,
		Size:  size,
		Flags: flags,
	}
	as.ID = core.IdentifierAquireNewID(as)
	as.Handle = d.allocateAddress(size)
	as.InternalData = &structure{asType: asType}
	d.structures[as.Handle] = as
	return as, nil
}

func (d *Device) DestroyAccelerationStructure(as *metadata.AccelerationStructure) {
	if as == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.structures[as.Handle]; !ok {
		return
	}
	delete(d.structures, as.Handle)
	if err := core.IdentifierReleaseID(as.ID); err != nil {
		core.LogWarn(err.Error())
	}
	as.Built = false
	as.InternalData = nil
}

// LiveAccelerationStructures is the number of structures not yet destroyed.
func (d *Device) LiveAccelerationStructures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.structures)
}

func (d *Device) lookupStructure(handle uint64) (*metadata.AccelerationStructure, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	as, ok := d.structures[handle]
	return as, ok
}

// CreateStateObject derives a deterministic identifier per group from
// the state object id, group index and group name.
func (d *Device) CreateStateObject(groups []metadata.ShaderGroup, maxTraceRecursionDepth uint32) (*metadata.StateObject, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: state object without shader groups", core.ErrDeviceFailure)
	}
	s := &metadata.StateObject{
		Groups:                 append([]metadata.ShaderGroup(nil), groups...),
		MaxTraceRecursionDepth: maxTraceRecursionDepth,
	}
	s.ID = core.IdentifierAquireNewID(s)
	s.Identifiers = make([][]byte, len(groups))
	for i, g := range groups {
		id := make([]byte, d.options.ProgramIdentifierSize)
		binary.LittleEndian.PutUint32(id[0:], s.ID)
		binary.LittleEndian.PutUint32(id[4:], uint32(i))
		h := fnv.New64a()
		h.Write([]byte(g.Name))
		if len(id) >= 16 {
			binary.LittleEndian.PutUint64(id[8:], h.Sum64())
		}
		s.Identifiers[i] = id
	}

	d.mu.Lock()
	d.states[s.ID] = s
	d.mu.Unlock()
	return s, nil
}

func (d *Device) DestroyStateObject(state *metadata.StateObject) {
	if state == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.states[state.ID]; !ok {
		return
	}
	delete(d.states, state.ID)
	if err := core.IdentifierReleaseID(state.ID); err != nil {
		core.LogWarn(err.Error())
	}
}

func (d *Device) CreateCommandStream() renderer.CommandStream {
	return newStream(d)
}

func (d *Device) CompletedFenceValue() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completedFence
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completedFence = d.submittedFence
	return nil
}

func (d *Device) nextFence() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submittedFence + 1
}

func (d *Device) signal() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submittedFence++
	if d.submittedFence > d.options.FenceLatency {
		done := d.submittedFence - d.options.FenceLatency
		if done > d.completedFence {
			d.completedFence = done
		}
	}
	return d.submittedFence
}
