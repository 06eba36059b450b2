package raytracing

import (
	"encoding/binary"

	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

const (
	// InstanceConstantsSize is the packed size of the per record constants.
	InstanceConstantsSize = 192
	// MaterialConstantsSize is the stride of the material constants buffer.
	MaterialConstantsSize = 80
)

/**
 * @brief The local constants of one hit record: world matrices of this
 * frame and the previous one, the inverse transpose of the world upper
 * 3x3 and the dense geometry id.
 */
type InstanceConstants struct {
	World        math.Mat4
	PrevWorld    math.Mat4
	NormalMatrix [3]math.Vec4
	GeometryID   uint32
}

// ComputeInstanceConstants places meshLocal inside the model instance.
func ComputeInstanceConstants(modelWorld, prevModelWorld, meshLocal math.Mat4, geometryID uint32) InstanceConstants {
	world := meshLocal.Mul(modelWorld)
	return InstanceConstants{
		World:        world,
		PrevWorld:    meshLocal.Mul(prevModelWorld),
		NormalMatrix: world.NormalMatrix(),
		GeometryID:   geometryID,
	}
}

func (c InstanceConstants) Encode(dst []byte) {
	_ = dst[InstanceConstantsSize-1]
	metadata.PutMat4(dst[0:], c.World)
	metadata.PutMat4(dst[64:], c.PrevWorld)
	for i, row := range c.NormalMatrix {
		metadata.PutVec4(dst[128+i*16:], row)
	}
	binary.LittleEndian.PutUint32(dst[176:], c.GeometryID)
}

func DecodeInstanceConstants(src []byte) InstanceConstants {
	_ = src[InstanceConstantsSize-1]
	var c InstanceConstants
	c.World = metadata.GetMat4(src[0:])
	c.PrevWorld = metadata.GetMat4(src[64:])
	for i := range c.NormalMatrix {
		c.NormalMatrix[i] = metadata.GetVec4(src[128+i*16:])
	}
	c.GeometryID = binary.LittleEndian.Uint32(src[176:])
	return c
}

// MaterialConstants is the packed per geometry material record.
type MaterialConstants struct {
	BaseColor      math.Vec4
	Specular       math.Vec4
	Emissive       math.Vec3
	AlphaThreshold float32
	IoR            float32
	ID             uint32
	Flags          uint32
	HeightScale    float32
	HeightOffset   float32
}

func NewMaterialConstants(m *metadata.Material) MaterialConstants {
	if m == nil {
		return MaterialConstants{BaseColor: math.NewVec4(1, 1, 1, 1), IoR: 1, ID: metadata.InvalidID}
	}
	return MaterialConstants{
		BaseColor:      m.BaseColor,
		Specular:       m.Specular,
		Emissive:       m.Emissive,
		AlphaThreshold: m.AlphaThreshold,
		IoR:            m.IoR,
		ID:             m.ID,
		Flags:          uint32(m.Flags),
		HeightScale:    m.HeightScale,
		HeightOffset:   m.HeightOffset,
	}
}

func (c MaterialConstants) Encode(dst []byte) {
	_ = dst[MaterialConstantsSize-1]
	metadata.PutVec4(dst[0:], c.BaseColor)
	metadata.PutVec4(dst[16:], c.Specular)
	metadata.PutVec4(dst[32:], c.Emissive.ToVec4(0))
	metadata.PutFloat32(dst[48:], c.AlphaThreshold)
	metadata.PutFloat32(dst[52:], c.IoR)
	binary.LittleEndian.PutUint32(dst[56:], c.ID)
	binary.LittleEndian.PutUint32(dst[60:], c.Flags)
	metadata.PutFloat32(dst[64:], c.HeightScale)
	metadata.PutFloat32(dst[68:], c.HeightOffset)
	clear(dst[72:MaterialConstantsSize])
}

func DecodeMaterialConstants(src []byte) MaterialConstants {
	_ = src[MaterialConstantsSize-1]
	return MaterialConstants{
		BaseColor:      metadata.GetVec4(src[0:]),
		Specular:       metadata.GetVec4(src[16:]),
		Emissive:       metadata.GetVec4(src[32:]).ToVec3(),
		AlphaThreshold: metadata.GetFloat32(src[48:]),
		IoR:            metadata.GetFloat32(src[52:]),
		ID:             binary.LittleEndian.Uint32(src[56:]),
		Flags:          binary.LittleEndian.Uint32(src[60:]),
		HeightScale:    metadata.GetFloat32(src[64:]),
		HeightOffset:   metadata.GetFloat32(src[68:]),
	}
}
