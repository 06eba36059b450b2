package raytracing

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

/**
 * @brief The shared material block: per geometry texture and sampler
 * arrays and a structured buffer of packed material constants. It is
 * allocated for one reflection and geometry count and replaced when
 * either changes.
 */
type MaterialBlock struct {
	device        renderer.Device
	reflectionID  uint32
	geometryCount uint32

	block     *renderer.ParameterBlock
	constants *metadata.Buffer
	staging   []byte

	textureLocs  [metadata.MaterialTextureCount]metadata.BindLocation
	samplerLoc   metadata.BindLocation
	constantsLoc metadata.BindLocation
	sampler      *metadata.Sampler
}

func newMaterialBlock(device renderer.Device, reflection *metadata.ParameterBlockReflection, geometryCount uint32) (*MaterialBlock, error) {
	if reflection == nil {
		return nil, fmt.Errorf("%w: program declares no %s block", core.ErrInvalidBindLocation, MaterialBlockName)
	}
	size := uint64(geometryCount) * MaterialConstantsSize
	if size == 0 {
		size = MaterialConstantsSize
	}
	constants, err := device.CreateBuffer(MaterialBlockName+"."+materialConstantsName, size, metadata.BufferUsageStorage)
	if err != nil {
		return nil, fmt.Errorf("%w: material constants: %v", core.ErrDeviceFailure, err)
	}
	constants.Stride = MaterialConstantsSize

	mb := &MaterialBlock{
		device:        device,
		reflectionID:  reflection.ID,
		geometryCount: geometryCount,
		block:         renderer.NewParameterBlock(reflection),
		constants:     constants,
		staging:       make([]byte, size),
		samplerLoc:    reflection.GetResourceBinding(materialSamplerName),
		constantsLoc:  reflection.GetResourceBinding(materialConstantsName),
		sampler: &metadata.Sampler{
			Name:      "material.default",
			MinFilter: metadata.TextureFilterModeLinear,
			MagFilter: metadata.TextureFilterModeLinear,
			Repeat:    metadata.TextureRepeatRepeat,
		},
	}
	for slot := metadata.MaterialTextureSlot(0); slot < metadata.MaterialTextureCount; slot++ {
		mb.textureLocs[slot] = reflection.GetResourceBinding(slot.ShaderName())
	}
	if err := mb.block.SetSrv(mb.constantsLoc, 0, metadata.NewBufferView(metadata.ResourceViewSrv, constants)); err != nil {
		mb.Release()
		return nil, err
	}
	return mb, nil
}

func (mb *MaterialBlock) Matches(reflectionID, geometryCount uint32) bool {
	return mb != nil && mb.reflectionID == reflectionID && mb.geometryCount == geometryCount
}

func (mb *MaterialBlock) Block() *renderer.ParameterBlock {
	return mb.block
}

// DefaultSampler is bound for materials without their own sampler.
func (mb *MaterialBlock) DefaultSampler() *metadata.Sampler {
	return mb.sampler
}

func (mb *MaterialBlock) GeometryCount() uint32 {
	return mb.geometryCount
}

// SetMaterial writes the textures, sampler and constants of geometry id.
// Absent textures bind null views, an absent sampler the default one.
func (mb *MaterialBlock) SetMaterial(geometryID uint32, mat *metadata.Material) error {
	if geometryID >= mb.geometryCount {
		return fmt.Errorf("%w: material for geometry %d, block sized for %d", core.ErrResourceArrayOverflow, geometryID, mb.geometryCount)
	}
	for slot := metadata.MaterialTextureSlot(0); slot < metadata.MaterialTextureCount; slot++ {
		view := metadata.NullSrv()
		if t := mat.Texture(slot); t != nil {
			view = metadata.NewTextureView(t)
		}
		if err := mb.block.SetSrv(mb.textureLocs[slot], geometryID, view); err != nil {
			core.LogError(err.Error())
			return err
		}
	}
	sampler := mb.sampler
	if mat != nil && mat.Sampler != nil {
		sampler = mat.Sampler
	}
	if err := mb.block.SetSampler(mb.samplerLoc, geometryID, sampler); err != nil {
		core.LogError(err.Error())
		return err
	}
	NewMaterialConstants(mat).Encode(mb.staging[geometryID*MaterialConstantsSize:])
	return nil
}

// MaterialConstants decodes the staged constants of geometry id.
func (mb *MaterialBlock) MaterialConstants(geometryID uint32) MaterialConstants {
	return DecodeMaterialConstants(mb.staging[geometryID*MaterialConstantsSize:])
}

// Upload flushes the staged constants to the device buffer.
func (mb *MaterialBlock) Upload() error {
	if err := mb.device.WriteBuffer(mb.constants, 0, mb.staging); err != nil {
		return fmt.Errorf("%w: material constants upload: %v", core.ErrDeviceFailure, err)
	}
	return nil
}

func (mb *MaterialBlock) Release() {
	if mb.constants != nil {
		mb.device.DestroyBuffer(mb.constants)
		mb.constants = nil
	}
}
