package raytracing

import (
	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

// Resource and constant names shared by the ray tracing shaders.
const (
	SceneResourceName  = "gRtScene"
	OutputResourceName = "gOutput"
	MaterialBlockName  = "gRtMaterials"

	materialSamplerName   = "samplerState"
	materialConstantsName = "constants"
	missIndexName         = "gMissIndex"

	worldMatName        = "gWorldMatLocal"
	prevWorldMatName    = "gPrevWorldMatLocal"
	worldInvTransName   = "gWorldInvTransposeMatLocal"
	geometryIDName      = "gGeometryID"
	viewMatName         = "viewMat"
	projMatName         = "projMat"
	viewProjMatName     = "viewProjMat"
	prevViewProjMatName = "prevViewProjMat"
	cameraPosName       = "cameraPosW"
	hitProgramCountName = "hitProgramCount"
	lightCountName      = "lightCount"
	lightsName          = "lights"
)

// MaxLights is how many lights the per frame constants carry.
const MaxLights = 16

const lightSize = 48

// ReflectionOptions shapes the standard program layout.
type ReflectionOptions struct {
	BindingModel config.BindingModel
	// ArraySize is the length of the per geometry arrays: mesh buffers in
	// the embedded model and material textures in both.
	ArraySize uint32
}

func newBlock(name string) *metadata.ParameterBlockReflection {
	r := metadata.NewParameterBlockReflection(0, name)
	r.ID = core.IdentifierAquireNewID(r)
	return r
}

func newMaterialBlockReflection(arraySize uint32) *metadata.ParameterBlockReflection {
	r := newBlock(MaterialBlockName)
	for slot := metadata.MaterialTextureSlot(0); slot < metadata.MaterialTextureCount; slot++ {
		r.AddResource(slot.ShaderName(), metadata.ShaderResourceSrv, arraySize)
	}
	r.AddResource(materialSamplerName, metadata.ShaderResourceSampler, arraySize)
	r.AddResource(materialConstantsName, metadata.ShaderResourceSrv, 1)
	return r
}

/**
 * @brief Builds the reflection the bundled ray tracing shaders declare
 * for desc under the chosen binding model. The tables model puts the
 * mesh buffers in every hit group's local block, the embedded model in
 * global arrays indexed by geometry id.
 */
func NewStandardReflection(name string, desc ProgramDesc, opts ReflectionOptions) *metadata.ProgramReflection {
	if opts.ArraySize == 0 {
		opts.ArraySize = 1
	}
	global := newBlock(name + ".global")
	global.AddResource(SceneResourceName, metadata.ShaderResourceAccelerationStructure, 1)
	global.AddResource(OutputResourceName, metadata.ShaderResourceUav, 1)
	global.AddConstant(viewMatName, 64)
	global.AddConstant(projMatName, 64)
	global.AddConstant(viewProjMatName, 64)
	global.AddConstant(prevViewProjMatName, 64)
	global.AddConstant(cameraPosName, 12)
	global.AddConstant(hitProgramCountName, 4)
	global.AddConstant(lightCountName, 4)
	global.AddConstant(lightsName, MaxLights*lightSize)
	global.AddBlock(newMaterialBlockReflection(opts.ArraySize))
	if opts.BindingModel == config.BindingModelEmbedded {
		for _, mb := range meshBufferSlots {
			global.AddResource(mb.name, metadata.ShaderResourceUav, opts.ArraySize)
		}
	}

	reflection := metadata.NewProgramReflection(0, name, global)
	reflection.ID = core.IdentifierAquireNewID(reflection)

	reflection.Locals[desc.RayGen] = newBlock(desc.RayGen)
	for _, miss := range desc.Miss {
		if miss == "" {
			continue
		}
		local := newBlock(miss)
		local.AddConstant(missIndexName, 4)
		reflection.Locals[miss] = local
	}
	for _, hit := range desc.Hit {
		if _, ok := reflection.Locals[hit.ClosestHit]; ok {
			continue
		}
		local := newBlock(hit.ClosestHit)
		if opts.BindingModel == config.BindingModelTables {
			for _, mb := range meshBufferSlots {
				local.AddResource(mb.name, metadata.ShaderResourceSrv, 1)
			}
		}
		local.AddConstant(worldMatName, 64)
		local.AddConstant(prevWorldMatName, 64)
		local.AddConstant(worldInvTransName, 48)
		local.AddConstant(geometryIDName, 4)
		reflection.Locals[hit.ClosestHit] = local
	}
	return reflection
}
