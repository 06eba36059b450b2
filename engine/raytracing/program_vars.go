package raytracing

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

// RecordWriter fills the part of a shader record that follows the
// program identifier.
type RecordWriter interface {
	PayloadSize(local *metadata.ParameterBlockReflection) uint32
	WritePayload(dst []byte, local *renderer.ParameterBlock) error
}

/**
 * @brief The variables of a ray tracing program: the global block, one
 * local block per shader record and the shader binding table they are
 * written to. Hit records are laid out geometry major, the record of
 * hit program p for geometry g sits at g*h+p.
 */
type RtProgramVars struct {
	device     renderer.Device
	transients *TransientPool
	program    *RtProgram

	global *renderer.ParameterBlock
	rayGen *renderer.ParameterBlock
	miss   []*renderer.ParameterBlock
	hit    []*renderer.ParameterBlock

	geometryCount  uint32
	identifierSize uint32
	stride         uint32

	sbt       *metadata.Buffer
	sbtData   []byte
	lastFence uint64
}

func NewRtProgramVars(program *RtProgram, scene *RtScene) *RtProgramVars {
	v := &RtProgramVars{
		device:         scene.Device(),
		transients:     scene.Transients(),
		program:        program,
		global:         renderer.NewParameterBlock(program.Reflection().Global),
		rayGen:         renderer.NewParameterBlock(program.RayGenLocal()),
		miss:           make([]*renderer.ParameterBlock, program.MissProgramCount()),
		identifierSize: scene.Device().ProgramIdentifierSize(),
	}
	for i := range v.miss {
		local := program.MissLocal(i)
		if local == nil {
			continue
		}
		v.miss[i] = renderer.NewParameterBlock(local)
		if _, ok := local.GetConstant(missIndexName); ok {
			var idx [4]byte
			binary.LittleEndian.PutUint32(idx[:], uint32(i))
			_ = v.miss[i].SetVariable(missIndexName, idx[:])
		}
	}
	return v
}

func (v *RtProgramVars) Program() *RtProgram {
	return v.program
}

func (v *RtProgramVars) Global() *renderer.ParameterBlock {
	return v.global
}

func (v *RtProgramVars) RayGenVars() *renderer.ParameterBlock {
	return v.rayGen
}

// MissVars returns nil for unused miss slots.
func (v *RtProgramVars) MissVars(index int) *renderer.ParameterBlock {
	if index < 0 || index >= len(v.miss) {
		return nil
	}
	return v.miss[index]
}

// HitVars returns the local block of hit program p for geometry id.
func (v *RtProgramVars) HitVars(p int, geometryID uint32) *renderer.ParameterBlock {
	h := v.HitProgramCount()
	if p < 0 || uint32(p) >= h || geometryID >= v.geometryCount {
		return nil
	}
	return v.hit[geometryID*h+uint32(p)]
}

func (v *RtProgramVars) HitProgramCount() uint32 {
	return v.program.HitProgramCount()
}

func (v *RtProgramVars) MissProgramCount() uint32 {
	return v.program.MissProgramCount()
}

func (v *RtProgramVars) GeometryCount() uint32 {
	return v.geometryCount
}

// IdentifierSize is the device program identifier size, queried once.
func (v *RtProgramVars) IdentifierSize() uint32 {
	return v.identifierSize
}

// RecordStride is the stride of the last applied table.
func (v *RtProgramVars) RecordStride() uint32 {
	return v.stride
}

func (v *RtProgramVars) ShaderTable() *metadata.Buffer {
	return v.sbt
}

// Resize recreates the hit records for geometryCount geometries.
func (v *RtProgramVars) Resize(geometryCount uint32) {
	if geometryCount == v.geometryCount && v.hit != nil {
		return
	}
	h := v.HitProgramCount()
	v.hit = make([]*renderer.ParameterBlock, geometryCount*h)
	for g := uint32(0); g < geometryCount; g++ {
		for p := uint32(0); p < h; p++ {
			v.hit[g*h+p] = renderer.NewParameterBlock(v.program.HitLocal(int(p)))
		}
	}
	v.geometryCount = geometryCount
	core.LogDebug("program vars '%s' resized to %d geometries, %d hit records", v.program.Name, geometryCount, len(v.hit))
}

// InvalidateDescriptorTables drops the tables of every local block.
func (v *RtProgramVars) InvalidateDescriptorTables() {
	v.rayGen.InvalidateDescriptorTable()
	for _, b := range v.miss {
		if b != nil {
			b.InvalidateDescriptorTable()
		}
	}
	for _, b := range v.hit {
		b.InvalidateDescriptorTable()
	}
}

func (v *RtProgramVars) payloadSize(writer RecordWriter) uint32 {
	size := writer.PayloadSize(v.program.RayGenLocal())
	for i := range v.miss {
		if local := v.program.MissLocal(i); local != nil {
			size = max(size, writer.PayloadSize(local))
		}
	}
	for p := 0; p < int(v.HitProgramCount()); p++ {
		size = max(size, writer.PayloadSize(v.program.HitLocal(p)))
	}
	return size
}

func (v *RtProgramVars) ensureTable(size uint64) error {
	if v.sbt != nil && v.sbt.Size >= size {
		return nil
	}
	if v.sbt != nil {
		v.transients.RetireBuffer(v.sbt, v.lastFence)
	}
	b, err := v.device.CreateBuffer(v.program.Name+".sbt", size, metadata.BufferUsageShaderBindingTable|metadata.BufferUsageUpload)
	if err != nil {
		return fmt.Errorf("%w: shader binding table: %v", core.ErrDeviceFailure, err)
	}
	v.sbt = b
	v.sbtData = make([]byte, size)
	return nil
}

func (v *RtProgramVars) applyRecord(so *metadata.StateObject, group string, local *renderer.ParameterBlock, writer RecordWriter, dst []byte) error {
	idx, ok := so.GroupIndex(group)
	if !ok {
		core.LogError("Could not find program version in state object program list: '%s' in '%s'", group, v.program.Name)
		return fmt.Errorf("%w: group '%s' of program '%s'", core.ErrProgramNotFound, group, v.program.Name)
	}
	copy(dst[:v.identifierSize], so.Identifier(idx))
	return writer.WritePayload(dst[v.identifierSize:], local)
}

/**
 * @brief Writes every shader record into the binding table, binds the
 * state object and the global block on stream, and returns the table
 * regions of the dispatch.
 */
func (v *RtProgramVars) Apply(stream renderer.CommandStream, state *RtState, writer RecordWriter) (metadata.DispatchDesc, error) {
	so, err := state.StateObject()
	if err != nil {
		return metadata.DispatchDesc{}, err
	}

	h := v.HitProgramCount()
	v.stride = math.AlignUp(v.identifierSize+v.payloadSize(writer), v.device.ShaderRecordAlignment())
	stride := uint64(v.stride)
	align := uint64(v.device.ShaderTableAlignment())
	missCount := uint64(v.MissProgramCount())
	hitCount := uint64(len(v.hit))

	missOffset := math.AlignUp(stride, align)
	hitOffset := math.AlignUp(missOffset+missCount*stride, align)
	total := hitOffset + hitCount*stride
	if err := v.ensureTable(total); err != nil {
		return metadata.DispatchDesc{}, err
	}
	v.lastFence = stream.NextFenceValue()
	clear(v.sbtData)

	if err := v.applyRecord(so, rayGenGroupName, v.rayGen, writer, v.sbtData[0:stride]); err != nil {
		return metadata.DispatchDesc{}, err
	}
	written := uint64(1)
	for i, local := range v.miss {
		if local == nil {
			continue
		}
		off := missOffset + uint64(i)*stride
		if err := v.applyRecord(so, MissGroupName(i), local, writer, v.sbtData[off:off+stride]); err != nil {
			return metadata.DispatchDesc{}, err
		}
		written++
	}
	for i, local := range v.hit {
		off := hitOffset + uint64(i)*stride
		if err := v.applyRecord(so, HitGroupName(i%int(h)), local, writer, v.sbtData[off:off+stride]); err != nil {
			return metadata.DispatchDesc{}, err
		}
		written++
	}
	if err := v.device.WriteBuffer(v.sbt, 0, v.sbtData[:total]); err != nil {
		return metadata.DispatchDesc{}, fmt.Errorf("%w: shader binding table upload: %v", core.ErrDeviceFailure, err)
	}
	core.MetricsAdd(core.MetricRecordWritten, written)

	if err := v.global.PrepareForDraw(); err != nil {
		return metadata.DispatchDesc{}, err
	}
	stream.SetRayTracingState(so)
	if err := stream.BindGlobals(v.global); err != nil {
		return metadata.DispatchDesc{}, fmt.Errorf("%w: binding globals: %v", core.ErrDeviceFailure, err)
	}

	return metadata.DispatchDesc{
		RayGen:    metadata.ShaderTableRegion{Buffer: v.sbt, Offset: 0, Stride: stride, Size: stride},
		Miss:      metadata.ShaderTableRegion{Buffer: v.sbt, Offset: missOffset, Stride: stride, Size: missCount * stride},
		Hit:       metadata.ShaderTableRegion{Buffer: v.sbt, Offset: hitOffset, Stride: stride, Size: hitCount * stride},
		HitStride: h,
	}, nil
}

// Release frees the binding table once the device is done with it.
func (v *RtProgramVars) Release() {
	if v.sbt != nil {
		v.transients.RetireBuffer(v.sbt, v.lastFence)
		v.sbt = nil
	}
}
