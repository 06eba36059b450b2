package metadata

import "github.com/spaghettifunk/anima-rt/engine/math"

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

/** @brief The texture slots a ray tracing material can populate. */
type MaterialTextureSlot int

const (
	MaterialTextureBaseColor MaterialTextureSlot = iota
	MaterialTextureSpecular
	MaterialTextureEmissive
	MaterialTextureNormalMap
	MaterialTextureOcclusion
	MaterialTextureLightMap
	MaterialTextureHeightMap
	MaterialTextureCount
)

var materialTextureNames = [MaterialTextureCount]string{
	"baseColor",
	"specular",
	"emissive",
	"normalMap",
	"occlusionMap",
	"lightMap",
	"heightMap",
}

// ShaderName is the resource name the slot binds to in the material block.
func (s MaterialTextureSlot) ShaderName() string {
	if s < 0 || s >= MaterialTextureCount {
		return ""
	}
	return materialTextureNames[s]
}

type MaterialFlags uint32

const (
	MaterialFlagDoubleSided MaterialFlags = 1 << iota
	MaterialFlagAlphaTested
	MaterialFlagEmissive
)

/**
 * @brief Material configuration typically loaded from
 * a file or created in code to load a material from.
 */
type MaterialConfig struct {
	Name           string
	BaseColor      math.Vec4
	Specular       math.Vec4
	Emissive       math.Vec3
	AlphaThreshold float32
	IoR            float32
	DoubleSided    bool
	HeightScale    float32
	HeightOffset   float32
}

/**
 * @brief A material, which represents various properties
 * of a surface in the world such as texture, colour,
 * bumpiness, shininess and more.
 */
type Material struct {
	ID   uint32
	Name string
	/** @brief Incremented every time the material is changed. */
	Generation uint32

	BaseColor      math.Vec4
	Specular       math.Vec4
	Emissive       math.Vec3
	AlphaThreshold float32
	IoR            float32
	Flags          MaterialFlags
	HeightScale    float32
	HeightOffset   float32

	Textures [MaterialTextureCount]*Texture
	Sampler  *Sampler
}

func NewMaterial(id uint32, config MaterialConfig) *Material {
	m := &Material{
		ID:             id,
		Name:           config.Name,
		BaseColor:      config.BaseColor,
		Specular:       config.Specular,
		Emissive:       config.Emissive,
		AlphaThreshold: config.AlphaThreshold,
		IoR:            config.IoR,
		HeightScale:    config.HeightScale,
		HeightOffset:   config.HeightOffset,
	}
	if m.IoR == 0 {
		m.IoR = 1.0
	}
	if config.DoubleSided {
		m.Flags |= MaterialFlagDoubleSided
	}
	if config.AlphaThreshold > 0 {
		m.Flags |= MaterialFlagAlphaTested
	}
	if config.Emissive != (math.Vec3{}) {
		m.Flags |= MaterialFlagEmissive
	}
	return m
}

func (m *Material) IsDoubleSided() bool {
	return m != nil && m.Flags&MaterialFlagDoubleSided != 0
}

func (m *Material) SetTexture(slot MaterialTextureSlot, t *Texture) {
	m.Textures[slot] = t
	m.Generation++
}

func (m *Material) Texture(slot MaterialTextureSlot) *Texture {
	if m == nil || slot < 0 || slot >= MaterialTextureCount {
		return nil
	}
	return m.Textures[slot]
}
