package raytracing

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

type bindFixture struct {
	scene  *RtScene
	vars   *RtProgramVars
	binder ShaderRecordBinder
}

func newBindFixture(t *testing.T, model config.BindingModel) bindFixture {
	t.Helper()
	rs, d, _ := twoInstanceScene(t, testOptions())
	t.Cleanup(rs.Release)
	_, err := rs.TopLevel(1)
	require.NoError(t, err)

	program := testProgram(t, model, 1, 0)
	vars := NewRtProgramVars(program, rs)
	vars.Resize(rs.GeometryCount())
	binder, err := NewBinder(model, d, rs.Transients(), 256)
	require.NoError(t, err)
	t.Cleanup(binder.Release)
	require.NoError(t, binder.Initialize(program.Reflection()))
	binder.BeginFrame(vars)
	return bindFixture{scene: rs, vars: vars, binder: binder}
}

func TestTablesBinderMeshBuffers(t *testing.T) {
	f := newBindFixture(t, config.BindingModelTables)
	mesh := f.scene.RtModel(0).Mesh(1)
	local := f.vars.HitVars(0, 1)
	require.NoError(t, f.binder.BindMeshBuffers(f.vars, local, mesh, 1))

	refl := local.Reflection()
	position, ok := mesh.Stream(scene.VertexPosition)
	require.True(t, ok)

	assert.Same(t, position, local.GetSrv(refl.GetResourceBinding("position"), 0).Buffer)
	assert.Same(t, position, local.GetSrv(refl.GetResourceBinding("prevPosition"), 0).Buffer, "previous positions fall back")
	assert.Same(t, mesh.IndexBuffer, local.GetSrv(refl.GetResourceBinding("indices"), 0).Buffer)
	for _, name := range []string{"normal", "texC", "lightmapUVs", "bitangent"} {
		assert.True(t, local.GetSrv(refl.GetResourceBinding(name), 0).IsNull(), name)
	}
}

func TestEmbeddedBinderMeshBuffers(t *testing.T) {
	f := newBindFixture(t, config.BindingModelEmbedded)
	embedded := f.binder.(*EmbeddedBinder)
	global := f.vars.Global()
	refl := global.Reflection()

	for id, meshIndex := range []int{0, 1} {
		mesh := f.scene.RtModel(0).Mesh(meshIndex)
		require.NoError(t, f.binder.BindMeshBuffers(f.vars, f.vars.HitVars(0, uint32(id)), mesh, uint32(id)))

		position, _ := mesh.Stream(scene.VertexPosition)
		assert.Same(t, position, global.GetUav(refl.GetResourceBinding("position"), uint32(id)).Buffer)
		assert.Same(t, position, global.GetUav(refl.GetResourceBinding("prevPosition"), uint32(id)).Buffer)
		assert.Same(t, mesh.IndexBuffer, global.GetUav(refl.GetResourceBinding("indices"), uint32(id)).Buffer)
		assert.Same(t, embedded.NullBuffer(), global.GetUav(refl.GetResourceBinding("normal"), uint32(id)).Buffer)
	}
	assert.Equal(t, uint64(1), embedded.NullBuffer().Size)

	// explicit previous positions win over the fallback
	mesh := f.scene.RtModel(0).Mesh(0)
	prev, err := f.scene.Device().CreateBuffer("prev", 48, 0)
	require.NoError(t, err)
	mesh.SetStream(scene.VertexPrevPosition, prev)
	defer mesh.SetStream(scene.VertexPrevPosition, nil)
	require.NoError(t, f.binder.BindMeshBuffers(f.vars, nil, mesh, 2))
	assert.Same(t, prev, global.GetUav(refl.GetResourceBinding("prevPosition"), 2).Buffer)
}

func TestBinderRebindClearsOptionalStreams(t *testing.T) {
	testCases := []struct {
		model config.BindingModel
		bound func(f bindFixture, id uint32) metadata.ResourceView
		empty func(t *testing.T, f bindFixture, view metadata.ResourceView)
	}{
		{
			model: config.BindingModelTables,
			bound: func(f bindFixture, id uint32) metadata.ResourceView {
				local := f.vars.HitVars(0, id)
				return local.GetSrv(local.Reflection().GetResourceBinding("lightmapUVs"), 0)
			},
			empty: func(t *testing.T, f bindFixture, view metadata.ResourceView) {
				assert.True(t, view.IsNull())
			},
		},
		{
			model: config.BindingModelEmbedded,
			bound: func(f bindFixture, id uint32) metadata.ResourceView {
				global := f.vars.Global()
				return global.GetUav(global.Reflection().GetResourceBinding("lightmapUVs"), id)
			},
			empty: func(t *testing.T, f bindFixture, view metadata.ResourceView) {
				assert.Same(t, f.binder.(*EmbeddedBinder).NullBuffer(), view.Buffer)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(string(tc.model), func(t *testing.T) {
			f := newBindFixture(t, tc.model)
			lit := f.scene.RtModel(0).Mesh(0)
			plain := f.scene.RtModel(0).Mesh(1)
			lightmap, err := f.scene.Device().CreateBuffer("lightmap", 32, 0)
			require.NoError(t, err)
			lit.SetStream(scene.VertexLightmapUV, lightmap)
			defer lit.SetStream(scene.VertexLightmapUV, nil)

			const id = 1
			require.NoError(t, f.binder.BindMeshBuffers(f.vars, f.vars.HitVars(0, id), lit, id))
			assert.Same(t, lightmap, tc.bound(f, id).Buffer)

			require.NoError(t, f.binder.BindMeshBuffers(f.vars, f.vars.HitVars(0, id), plain, id))
			view := tc.bound(f, id)
			assert.NotSame(t, lightmap, view.Buffer)
			tc.empty(t, f, view)
		})
	}
}

func TestBinderResolvesLocationsOnce(t *testing.T) {
	testCases := []struct {
		model    config.BindingModel
		resolves int
	}{
		// raygen, miss and the shared closest hit layout
		{config.BindingModelTables, 3},
		{config.BindingModelEmbedded, 1},
	}
	for _, tc := range testCases {
		t.Run(string(tc.model), func(t *testing.T) {
			f := newBindFixture(t, tc.model)
			type resolver interface{ Resolves() int }
			r := f.binder.(resolver)
			assert.Equal(t, tc.resolves, r.Resolves())

			for frame := 0; frame < 3; frame++ {
				f.binder.BeginFrame(f.vars)
				require.NoError(t, f.binder.Initialize(f.vars.Program().Reflection()))
				for id := uint32(0); id < f.vars.GeometryCount(); id++ {
					mesh := f.scene.RtModel(0).Mesh(int(id % 2))
					require.NoError(t, f.binder.BindMeshBuffers(f.vars, f.vars.HitVars(0, id), mesh, id))
				}
			}
			assert.Equal(t, tc.resolves, r.Resolves())
		})
	}
}

func TestBinderRejectsSkinnedMeshes(t *testing.T) {
	f := newBindFixture(t, config.BindingModelEmbedded)
	skinned := newQuad("skinned", nil)
	skinned.BoneCount = 2
	identity := math.NewMat4Identity()
	assert.Panics(t, func() {
		_ = f.binder.SetInstanceConstants(f.vars.HitVars(0, 0), skinned, identity, identity, identity, 0)
	})
}

func TestBinderInstanceConstants(t *testing.T) {
	f := newBindFixture(t, config.BindingModelEmbedded)
	world := f.scene.ModelInstanceWorld(0, 1)
	local := f.vars.HitVars(0, 3)
	meshLocal := f.scene.RtModel(0).Model.MeshInstance(1, 0).Transform
	require.NoError(t, f.binder.SetInstanceConstants(local, f.scene.RtModel(0).Mesh(1), world, world, meshLocal, 3))

	got := local.Constants()
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(got[176:]))
	c := ComputeInstanceConstants(world, world, meshLocal, 3)
	var want [InstanceConstantsSize]byte
	c.Encode(want[:])
	assert.Equal(t, want[:180], got[:180])
}

func TestTablesBinderPayload(t *testing.T) {
	f := newBindFixture(t, config.BindingModelTables)
	tables := f.binder.(*TablesBinder)
	local := f.vars.HitVars(0, 2)
	mesh := f.scene.RtModel(0).Mesh(0)
	world := f.scene.ModelInstanceWorld(0, 1)
	identity := math.NewMat4Identity()
	require.NoError(t, f.binder.SetInstanceConstants(local, mesh, world, world, identity, 2))
	require.NoError(t, f.binder.BindMeshBuffers(f.vars, local, mesh, 2))

	size := f.binder.PayloadSize(local.Reflection())
	assert.Equal(t, uint32(descriptorHandleSize)+local.Reflection().ConstantsSize, size)
	dst := make([]byte, size)
	require.NoError(t, f.binder.WritePayload(dst, local))
	assert.NotZero(t, binary.LittleEndian.Uint64(dst))
	assert.Equal(t, local.Constants(), dst[descriptorHandleSize:])
	assert.Equal(t, local.DescriptorCount(), tables.Pool().Used())

	// unchanged blocks keep their table until the next frame
	again := make([]byte, size)
	require.NoError(t, f.binder.WritePayload(again, local))
	assert.Equal(t, dst, again)
	f.binder.BeginFrame(f.vars)
	assert.Zero(t, tables.Pool().Used())
}

func TestEmbeddedBinderPayload(t *testing.T) {
	f := newBindFixture(t, config.BindingModelEmbedded)
	local := f.vars.HitVars(0, 0)
	size := f.binder.PayloadSize(local.Reflection())
	assert.Equal(t, local.Reflection().ConstantsSize, size)
	assert.Zero(t, f.binder.PayloadSize(nil))

	dst := make([]byte, size)
	require.NoError(t, f.binder.WritePayload(dst, local))
	assert.Equal(t, local.Constants(), dst)
}

func TestBinderMaterialBlock(t *testing.T) {
	f := newBindFixture(t, config.BindingModelEmbedded)
	type materials interface{ MaterialBlock() *MaterialBlock }
	red := scene.NewMaterial(metadata.MaterialConfig{Name: "red", BaseColor: math.NewVec4(1, 0, 0, 1)})

	require.NoError(t, f.binder.BindMaterial(f.vars, red, 3))
	require.NoError(t, f.binder.BindMaterial(f.vars, nil, 0))
	mb := f.binder.(materials).MaterialBlock()
	require.NotNil(t, mb)
	assert.Equal(t, f.vars.GeometryCount(), mb.GeometryCount())
	assert.Same(t, mb.Block(), f.vars.Global().GetParameterBlock(MaterialBlockName))
	assert.Equal(t, red.BaseColor, mb.MaterialConstants(3).BaseColor)
	assert.Equal(t, red.ID, mb.MaterialConstants(3).ID)
	assert.Equal(t, math.NewVec4(1, 1, 1, 1), mb.MaterialConstants(0).BaseColor)

	err := f.binder.BindMaterial(f.vars, red, f.vars.GeometryCount())
	assert.ErrorIs(t, err, core.ErrResourceArrayOverflow)

	// a new geometry count replaces the block
	f.vars.Resize(6)
	require.NoError(t, f.binder.BindMaterial(f.vars, red, 5))
	assert.NotSame(t, mb, f.binder.(materials).MaterialBlock())
	assert.Equal(t, uint32(6), f.binder.(materials).MaterialBlock().GeometryCount())
}

func TestMaterialBlockSamplerPerGeometry(t *testing.T) {
	f := newBindFixture(t, config.BindingModelTables)
	nearest := &metadata.Sampler{
		Name:      "nearest",
		MinFilter: metadata.TextureFilterModeNearest,
		MagFilter: metadata.TextureFilterModeNearest,
	}
	pixel := scene.NewMaterial(metadata.MaterialConfig{Name: "pixel"})
	pixel.Sampler = nearest

	require.NoError(t, f.binder.BindMaterial(f.vars, pixel, 0))
	require.NoError(t, f.binder.BindMaterial(f.vars, nil, 1))
	plain := scene.NewMaterial(metadata.MaterialConfig{Name: "plain"})
	require.NoError(t, f.binder.BindMaterial(f.vars, plain, 2))

	mb := f.binder.(interface{ MaterialBlock() *MaterialBlock }).MaterialBlock()
	loc := mb.Block().Reflection().GetResourceBinding("samplerState")
	assert.Same(t, nearest, mb.Block().GetSampler(loc, 0))
	assert.Same(t, mb.DefaultSampler(), mb.Block().GetSampler(loc, 1))
	assert.Same(t, mb.DefaultSampler(), mb.Block().GetSampler(loc, 2))

	// rebinding a geometry replaces its sampler
	require.NoError(t, f.binder.BindMaterial(f.vars, plain, 0))
	assert.Same(t, mb.DefaultSampler(), mb.Block().GetSampler(loc, 0))
}

func TestEmbeddedBinderArrayOverflow(t *testing.T) {
	rs, d, _ := twoInstanceScene(t, testOptions())
	defer rs.Release()
	_, err := rs.TopLevel(1)
	require.NoError(t, err)

	desc := ProgramDesc{RayGen: "rayGen"}
	desc.AddHitGroup("closestHit", "", "")
	reflection := NewStandardReflection("small", desc, ReflectionOptions{BindingModel: config.BindingModelEmbedded, ArraySize: 2})
	program, err := NewRtProgram("small", desc, reflection)
	require.NoError(t, err)
	vars := NewRtProgramVars(program, rs)
	vars.Resize(rs.GeometryCount())

	binder, err := NewEmbeddedBinder(d, rs.Transients())
	require.NoError(t, err)
	defer binder.Release()
	require.NoError(t, binder.Initialize(reflection))

	mesh := rs.RtModel(0).Mesh(0)
	require.NoError(t, binder.BindMeshBuffers(vars, nil, mesh, 1))
	err = binder.BindMeshBuffers(vars, nil, mesh, 2)
	assert.ErrorIs(t, err, core.ErrResourceArrayOverflow)
}

func TestNewBinderRejectsUnknownModel(t *testing.T) {
	d, _ := newTestDevice()
	_, err := NewBinder(config.BindingModel("bindless"), d, NewTransientPool(d, 4), 16)
	assert.Error(t, err)
}
