package metadata

/** @brief How a device buffer is going to be consumed. */
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageStorage
	BufferUsageUniform
	BufferUsageShaderBindingTable
	BufferUsageAccelerationStructureInput
	BufferUsageAccelerationStructureStorage
	BufferUsageScratch
	BufferUsageUpload
)

func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

/**
 * @brief A device buffer. Data is the host visible mirror, written
 * through the device so backends can flush it.
 */
type Buffer struct {
	ID    uint32
	Name  string
	Size  uint64
	Usage BufferUsage
	Data  []byte
	/** @brief Device address used by acceleration structure builds. */
	DeviceAddress uint64
	/** @brief Element stride for structured views, 0 for raw buffers. */
	Stride uint32
	/** @brief Opaque backend data. */
	InternalData interface{}
}

func (b *Buffer) ElementCount() uint64 {
	if b == nil || b.Stride == 0 {
		return 0
	}
	return b.Size / uint64(b.Stride)
}

type ResourceViewType int

const (
	ResourceViewSrv ResourceViewType = iota
	ResourceViewUav
)

/**
 * @brief A shader visible view on a buffer or texture. A view with
 * neither set is a null view: shaders read zeros from it.
 */
type ResourceView struct {
	Type    ResourceViewType
	Buffer  *Buffer
	Texture *Texture
}

func NullSrv() ResourceView {
	return ResourceView{Type: ResourceViewSrv}
}

func NewBufferView(t ResourceViewType, b *Buffer) ResourceView {
	return ResourceView{Type: t, Buffer: b}
}

func NewTextureView(t *Texture) ResourceView {
	return ResourceView{Type: ResourceViewSrv, Texture: t}
}

func (v ResourceView) IsNull() bool {
	return v.Buffer == nil && v.Texture == nil
}
