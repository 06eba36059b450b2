package metadata

import (
	"encoding/binary"
	"math"
)

type AccelerationStructureType int

const (
	AccelerationStructureBottomLevel AccelerationStructureType = iota
	AccelerationStructureTopLevel
)

/** @brief Build flags shared by bottom and top level structures. */
type BuildFlags uint32

const (
	BuildFlagNone            BuildFlags = 0
	BuildFlagAllowUpdate     BuildFlags = 0x1
	BuildFlagAllowCompaction BuildFlags = 0x2
	BuildFlagPreferFastTrace BuildFlags = 0x4
	BuildFlagPreferFastBuild BuildFlags = 0x8
	BuildFlagMinimizeMemory  BuildFlags = 0x10
	BuildFlagPerformUpdate   BuildFlags = 0x20
)

func (f BuildFlags) Has(flag BuildFlags) bool {
	return f&flag == flag
}

/**
 * @brief An acceleration structure living in device memory. Handle is
 * the address instance descriptors reference.
 */
type AccelerationStructure struct {
	ID      uint32
	Type    AccelerationStructureType
	Handle  uint64
	Size    uint64
	Flags   BuildFlags
	Buffer  *Buffer
	Built   bool
	Updates uint32
	/** @brief Opaque backend data. */
	InternalData interface{}
}

type GeometryFlags uint32

const (
	GeometryFlagOpaque            GeometryFlags = 0x1
	GeometryFlagNoDuplicateAnyHit GeometryFlags = 0x2
)

/**
 * @brief One triangle geometry of a bottom level build. Transform is
 * applied by the builder before the primitives are bounded.
 */
type GeometryDesc struct {
	VertexBuffer *Buffer
	VertexStride uint32
	VertexCount  uint32
	IndexBuffer  *Buffer
	IndexCount   uint32
	Transform    *[12]float32
	Flags        GeometryFlags
}

/** @brief Inputs of one acceleration structure build. */
type AccelerationStructureInputs struct {
	Type       AccelerationStructureType
	Flags      BuildFlags
	Geometries []GeometryDesc
	/** @brief Instance buffer of encoded InstanceDesc for top level builds. */
	Instances     *Buffer
	InstanceCount uint32
}

type PrebuildInfo struct {
	ResultDataMaxSize uint64
	ScratchDataSize   uint64
	UpdateScratchSize uint64
}

type InstanceFlags uint8

const (
	InstanceFlagTriangleCullDisable InstanceFlags = 0x1
	InstanceFlagTriangleFrontCCW    InstanceFlags = 0x2
	InstanceFlagForceOpaque         InstanceFlags = 0x4
	InstanceFlagForceNoOpaque       InstanceFlags = 0x8
)

const (
	InstanceDescSize  = 64
	InstanceMaskAll   = 0xFF
	instanceFieldMask = 0x00FFFFFF
)

/**
 * @brief A top level instance. Encodes to the 64 byte layout both
 * graphics APIs share: a 3x4 row-major transform, 24 bit custom id,
 * 8 bit mask, 24 bit hit group offset, 8 bit flags, structure address.
 */
type InstanceDesc struct {
	Transform             [12]float32
	InstanceID            uint32
	Mask                  uint8
	HitGroupOffset        uint32
	Flags                 InstanceFlags
	AccelerationStructure uint64
}

func (d InstanceDesc) Encode(dst []byte) {
	_ = dst[InstanceDescSize-1]
	for i, f := range d.Transform {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(dst[48:], (d.InstanceID&instanceFieldMask)|uint32(d.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], (d.HitGroupOffset&instanceFieldMask)|uint32(d.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], d.AccelerationStructure)
}

func DecodeInstanceDesc(src []byte) InstanceDesc {
	_ = src[InstanceDescSize-1]
	var d InstanceDesc
	for i := range d.Transform {
		d.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	w := binary.LittleEndian.Uint32(src[48:])
	d.InstanceID = w & instanceFieldMask
	d.Mask = uint8(w >> 24)
	w = binary.LittleEndian.Uint32(src[52:])
	d.HitGroupOffset = w & instanceFieldMask
	d.Flags = InstanceFlags(w >> 24)
	d.AccelerationStructure = binary.LittleEndian.Uint64(src[56:])
	return d
}

// DispatchExtent is the 3-D thread extent of a trace call.
type DispatchExtent struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

func (e DispatchExtent) Normalized() DispatchExtent {
	if e.Depth == 0 {
		e.Depth = 1
	}
	return e
}

/** @brief A region of the shader binding table. */
type ShaderTableRegion struct {
	Buffer *Buffer
	Offset uint64
	Stride uint64
	Size   uint64
}

func (r ShaderTableRegion) Count() uint64 {
	if r.Stride == 0 {
		return 0
	}
	return r.Size / r.Stride
}

type DispatchDesc struct {
	RayGen ShaderTableRegion
	Miss   ShaderTableRegion
	Hit    ShaderTableRegion
	Extent DispatchExtent
	/** @brief Geometry multiplier the hit shaders pass to TraceRay, the hit program count. */
	HitStride uint32
}
