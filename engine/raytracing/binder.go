package raytracing

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

/**
 * @brief Fills the shader records and global resources of every
 * geometry a dispatch can hit. The two binding models differ in where
 * mesh buffers live and what a record carries after the identifier.
 */
type ShaderRecordBinder interface {
	RecordWriter

	BindingModel() config.BindingModel
	// Initialize resolves the resource locations of reflection once.
	Initialize(reflection *metadata.ProgramReflection) error
	BeginFrame(vars *RtProgramVars)
	SetInstanceConstants(local *renderer.ParameterBlock, mesh *scene.Mesh, modelWorld, prevModelWorld, meshLocal math.Mat4, geometryID uint32) error
	BindMeshBuffers(vars *RtProgramVars, local *renderer.ParameterBlock, mesh *scene.Mesh, geometryID uint32) error
	BindMaterial(vars *RtProgramVars, material *metadata.Material, geometryID uint32) error
	// Flush uploads state staged by the bind calls of this frame, which
	// the submission signalling fence consumes.
	Flush(fence uint64) error
	Release()
}

func NewBinder(model config.BindingModel, device renderer.Device, transients *TransientPool, descriptorPoolSize uint32) (ShaderRecordBinder, error) {
	switch model {
	case config.BindingModelTables:
		return NewTablesBinder(device, transients, descriptorPoolSize), nil
	case config.BindingModelEmbedded:
		return NewEmbeddedBinder(device, transients)
	}
	return nil, fmt.Errorf("unknown binding model %q", model)
}

type meshBufferSlot struct {
	name     string
	semantic scene.VertexSemantic
	index    bool
}

var meshBufferSlots = []meshBufferSlot{
	{name: "indices", index: true},
	{name: scene.VertexLightmapUV.String(), semantic: scene.VertexLightmapUV},
	{name: scene.VertexTexCoord.String(), semantic: scene.VertexTexCoord},
	{name: scene.VertexNormal.String(), semantic: scene.VertexNormal},
	{name: scene.VertexPosition.String(), semantic: scene.VertexPosition},
	{name: scene.VertexBitangent.String(), semantic: scene.VertexBitangent},
	{name: scene.VertexPrevPosition.String(), semantic: scene.VertexPrevPosition},
}

// meshStream returns the buffer backing slot. Previous positions fall
// back to the current ones.
func meshStream(mesh *scene.Mesh, slot meshBufferSlot) (*metadata.Buffer, bool) {
	if slot.index {
		return mesh.IndexBuffer, mesh.IndexBuffer != nil
	}
	if b, ok := mesh.Stream(slot.semantic); ok {
		return b, true
	}
	if slot.semantic == scene.VertexPrevPosition {
		return mesh.Stream(scene.VertexPosition)
	}
	return nil, false
}

type binderBase struct {
	device     renderer.Device
	transients *TransientPool

	locations map[uint32][]metadata.BindLocation
	resolves  int

	materialReflection *metadata.ParameterBlockReflection
	materialLoc        metadata.BindLocation
	material           *MaterialBlock
	lastFence          uint64
}

func newBinderBase(device renderer.Device, transients *TransientPool) binderBase {
	return binderBase{
		device:      device,
		transients:  transients,
		locations:   make(map[uint32][]metadata.BindLocation),
		materialLoc: metadata.InvalidBindLocation,
	}
}

// resolve returns the mesh slot locations of block, resolving them on
// first use.
func (b *binderBase) resolve(block *metadata.ParameterBlockReflection) []metadata.BindLocation {
	if block == nil {
		return nil
	}
	if locs, ok := b.locations[block.ID]; ok {
		return locs
	}
	locs := make([]metadata.BindLocation, len(meshBufferSlots))
	for i, slot := range meshBufferSlots {
		locs[i] = block.GetResourceBinding(slot.name)
	}
	b.locations[block.ID] = locs
	b.resolves++
	return locs
}

func (b *binderBase) initializeMaterial(reflection *metadata.ProgramReflection) {
	b.materialReflection = reflection.Global.GetBlock(MaterialBlockName)
	b.materialLoc = reflection.Global.GetResourceBinding(MaterialBlockName)
}

// Resolves counts how many block layouts were resolved so far.
func (b *binderBase) Resolves() int {
	return b.resolves
}

func (b *binderBase) MaterialBlock() *MaterialBlock {
	return b.material
}

func (b *binderBase) SetInstanceConstants(local *renderer.ParameterBlock, mesh *scene.Mesh, modelWorld, prevModelWorld, meshLocal math.Mat4, geometryID uint32) error {
	if mesh.HasBones() {
		panic(fmt.Sprintf("mesh '%s' is skinned, its instance data cannot be bound per record", mesh.Name))
	}
	c := ComputeInstanceConstants(modelWorld, prevModelWorld, meshLocal, geometryID)
	var data [InstanceConstantsSize]byte
	c.Encode(data[:])
	for _, v := range []struct {
		name       string
		begin, end int
	}{
		{worldMatName, 0, 64},
		{prevWorldMatName, 64, 128},
		{worldInvTransName, 128, 176},
		{geometryIDName, 176, 180},
	} {
		if _, ok := local.Reflection().GetConstant(v.name); !ok {
			continue
		}
		if err := local.SetVariable(v.name, data[v.begin:v.end]); err != nil {
			return err
		}
	}
	return nil
}

// BindMaterial writes the material of geometry id into the shared
// block, reallocating the block when the geometry count changed.
func (b *binderBase) BindMaterial(vars *RtProgramVars, material *metadata.Material, geometryID uint32) error {
	if b.materialReflection == nil {
		return nil
	}
	if !b.material.Matches(b.materialReflection.ID, vars.GeometryCount()) {
		if b.material != nil {
			old := b.material
			b.transients.Retire(MaterialBlockName, b.lastFence, old.Release)
		}
		mb, err := newMaterialBlock(b.device, b.materialReflection, vars.GeometryCount())
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		b.material = mb
	}
	if vars.Global().GetParameterBlock(MaterialBlockName) != b.material.Block() {
		if err := vars.Global().SetParameterBlock(b.materialLoc, b.material.Block()); err != nil {
			return err
		}
	}
	return b.material.SetMaterial(geometryID, material)
}

func (b *binderBase) Flush(fence uint64) error {
	b.lastFence = fence
	if b.material == nil {
		return nil
	}
	return b.material.Upload()
}

func (b *binderBase) releaseBase() {
	if b.material != nil {
		b.material.Release()
		b.material = nil
	}
}
