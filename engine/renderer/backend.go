package renderer

import "github.com/spaghettifunk/anima-rt/engine/renderer/metadata"

/**
 * @brief The device a ray tracing renderer runs on. Implementations
 * wrap a graphics API; the software package provides a CPU reference.
 */
type Device interface {
	Name() string
	/** @brief Size in bytes of an opaque shader group identifier. */
	ProgramIdentifierSize() uint32
	/** @brief Required alignment of a shader record. */
	ShaderRecordAlignment() uint32
	/** @brief Required alignment of a shader table region start. */
	ShaderTableAlignment() uint32

	CreateBuffer(name string, size uint64, usage metadata.BufferUsage) (*metadata.Buffer, error)
	WriteBuffer(buffer *metadata.Buffer, offset uint64, data []byte) error
	DestroyBuffer(buffer *metadata.Buffer)

	GetAccelerationStructurePrebuildInfo(inputs *metadata.AccelerationStructureInputs) metadata.PrebuildInfo
	CreateAccelerationStructure(asType metadata.AccelerationStructureType, size uint64, flags metadata.BuildFlags) (*metadata.AccelerationStructure, error)
	DestroyAccelerationStructure(as *metadata.AccelerationStructure)

	CreateStateObject(groups []metadata.ShaderGroup, maxTraceRecursionDepth uint32) (*metadata.StateObject, error)
	DestroyStateObject(state *metadata.StateObject)

	CreateCommandStream() CommandStream
	/** @brief The highest fence value the device finished executing. */
	CompletedFenceValue() uint64
	WaitIdle() error
}

/**
 * @brief A single producer command stream. Work recorded here executes
 * in order once submitted.
 */
type CommandStream interface {
	BuildAccelerationStructure(inputs *metadata.AccelerationStructureInputs, dst, src *metadata.AccelerationStructure, scratch *metadata.Buffer) error
	AccelerationStructureBarrier(as *metadata.AccelerationStructure)
	SetRayTracingState(state *metadata.StateObject)
	BindGlobals(block *ParameterBlock) error
	TraceRays(desc metadata.DispatchDesc) error
	/** @brief Submits recorded work and returns the fence value it signals. */
	Submit() (uint64, error)
	/** @brief The fence value the next Submit will signal. */
	NextFenceValue() uint64
}
