package metadata

type TextureFlag int

const (
	/** @brief Indicates if the texture has transparency. */
	TextureFlagHasTransparency TextureFlag = 0x1
	/** @brief Indicates if the texture can be written (rendered) to. */
	TextureFlagIsWriteable TextureFlag = 0x2
)

/**
 * @brief Represents a texture.
 */
type Texture struct {
	ID     uint32
	Name   string
	Width  uint32
	Height uint32
	Flags  TextureFlag
	/** @brief Incremented every time the data is reloaded. */
	Generation uint32
	/** @brief The raw texture data. */
	InternalData interface{}
}

func (t *Texture) IsWriteable() bool {
	return t != nil && t.Flags&TextureFlagIsWriteable != 0
}

/** @brief Represents supported texture filtering modes. */
type TextureFilter int

const (
	TextureFilterModeNearest TextureFilter = iota
	TextureFilterModeLinear
)

type TextureRepeat int

const (
	TextureRepeatRepeat TextureRepeat = iota
	TextureRepeatMirroredRepeat
	TextureRepeatClampToEdge
)

// Sampler describes how material textures are filtered.
type Sampler struct {
	ID        uint32
	Name      string
	MinFilter TextureFilter
	MagFilter TextureFilter
	Repeat    TextureRepeat
}
