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
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

var testExtent = metadata.DispatchExtent{Width: 64, Height: 32}

type frameFixture struct {
	scene    *RtScene
	device   *software.Device
	stream   *software.Stream
	program  *RtProgram
	vars     *RtProgramVars
	state    *RtState
	renderer *RtSceneRenderer
	camera   *scene.Camera
}

func newFrameFixture(t *testing.T, rs *RtScene, d *software.Device, s *software.Stream, model config.BindingModel, hitGroups int, poolSize uint32) *frameFixture {
	t.Helper()
	program := testProgram(t, model, hitGroups, 0, 2)

	binder, err := NewBinder(model, d, rs.Transients(), poolSize)
	require.NoError(t, err)
	f := &frameFixture{
		scene:    rs,
		device:   d,
		stream:   s,
		program:  program,
		vars:     NewRtProgramVars(program, rs),
		state:    NewRtState(d, program, 2),
		renderer: NewRtSceneRenderer(rs, binder),
		camera:   scene.NewCamera("camera"),
	}
	t.Cleanup(func() {
		f.vars.Release()
		f.state.Release()
		f.renderer.Release()
		rs.Release()
	})
	return f
}

func (f *frameFixture) render() error {
	return f.renderer.RenderScene(f.vars, f.state, testExtent, f.camera)
}

// hitRecord returns the record of hit program p for geometry id.
func (f *frameFixture) hitRecord(desc metadata.DispatchDesc, p int, id uint32) []byte {
	index := uint64(id)*uint64(desc.HitStride) + uint64(p)
	off := desc.Hit.Offset + index*desc.Hit.Stride
	return desc.Hit.Buffer.Data[off : off+desc.Hit.Stride]
}

func TestRenderSceneDispatches(t *testing.T) {
	for _, model := range []config.BindingModel{config.BindingModelTables, config.BindingModelEmbedded} {
		t.Run(string(model), func(t *testing.T) {
			rs, d, s := twoInstanceScene(t, testOptions())
			f := newFrameFixture(t, rs, d, s, model, 2, 4096)
			before := core.MetricsSnapshot().RecordsWritten

			require.NoError(t, f.render())
			assert.Equal(t, FrameDispatched, f.renderer.State())

			desc := f.renderer.LastDispatch()
			last, ok := s.LastDispatch()
			require.True(t, ok)
			assert.Equal(t, desc, last)

			assert.Equal(t, uint32(2), desc.HitStride)
			assert.Equal(t, uint64(4*2), desc.Hit.Count())
			assert.Equal(t, uint64(3), desc.Miss.Count())
			assert.Equal(t, uint64(1), desc.RayGen.Count())
			assert.Zero(t, desc.Hit.Stride%32)
			assert.Zero(t, desc.Miss.Offset%64)
			assert.Zero(t, desc.Hit.Offset%64)
			assert.Equal(t, uint32(1), desc.Extent.Depth)
			assert.Equal(t, uint32(desc.Hit.Stride), f.vars.RecordStride())
			assert.Equal(t, uint64(1+2+8), core.MetricsSnapshot().RecordsWritten-before)

			tlas := rs.Builder().Current()
			assert.Same(t, tlas, s.BoundTopLevel())

			so, err := f.state.StateObject()
			require.NoError(t, err)
			payload := f.vars.IdentifierSize()
			if model == config.BindingModelTables {
				payload += descriptorHandleSize
			}
			for id := uint32(0); id < 4; id++ {
				for p := 0; p < 2; p++ {
					record := f.hitRecord(desc, p, id)
					group, ok := so.GroupIndex(HitGroupName(p))
					require.True(t, ok)
					assert.Equal(t, so.Identifier(group), record[:f.vars.IdentifierSize()])
					assert.Equal(t, id, binary.LittleEndian.Uint32(record[payload+176:]), "geometry %d program %d", id, p)
				}
			}

			// a ray hitting geometry 3 selects the records of geometry 3
			hit, ok := d.Intersect(tlas, math.NewVec3(10, 0, -1), down, metadata.InstanceMaskAll, desc.HitStride)
			require.True(t, ok)
			assert.Equal(t, uint32(3), hit.InstanceID)
			assert.Equal(t, uint32(6), hit.HitGroupIndex)

			table := desc.Miss.Buffer.Data
			missRecord := func(i int) []byte {
				off := desc.Miss.Offset + uint64(i)*desc.Miss.Stride
				return table[off : off+uint64(f.vars.IdentifierSize())]
			}
			group, ok := so.GroupIndex(MissGroupName(2))
			require.True(t, ok)
			assert.Equal(t, so.Identifier(group), missRecord(2))
			assert.Equal(t, make([]byte, f.vars.IdentifierSize()), missRecord(1), "unused miss slot")
		})
	}
}

func TestRenderSceneTablesRecordsHandles(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	f := newFrameFixture(t, rs, d, s, config.BindingModelTables, 1, 4096)
	require.NoError(t, f.render())

	desc := f.renderer.LastDispatch()
	handles := map[uint64]bool{}
	for id := uint32(0); id < 4; id++ {
		record := f.hitRecord(desc, 0, id)
		handle := binary.LittleEndian.Uint64(record[f.vars.IdentifierSize():])
		assert.NotZero(t, handle)
		handles[handle] = true
	}
	assert.Len(t, handles, 4, "every record owns its table")

	pool := f.renderer.Binder().(*TablesBinder).Pool()
	used := pool.Used()
	require.NoError(t, f.render())
	assert.Equal(t, used, pool.Used(), "the pool is recycled every frame")
}

func TestRenderSceneMaterials(t *testing.T) {
	tinted := scene.NewMaterial(metadata.MaterialConfig{Name: "tinted", BaseColor: math.NewVec4(0.2, 0.4, 0.6, 1)})
	model := scene.NewModel("materials")
	model.AddMesh(newQuad("plain", nil))
	model.AddMesh(newQuad("tinted", tinted), math.NewMat4Translation(math.NewVec3(0, 0, -2)))
	rs, d, s := newTestScene(t, testOptions(),
		placedAt(model, "a", math.NewVec3(0, 0, 0)),
		placedAt(model, "b", math.NewVec3(10, 0, 0)))

	for _, binding := range []config.BindingModel{config.BindingModelTables, config.BindingModelEmbedded} {
		f := newFrameFixture(t, rs, d, s, binding, 2, 4096)
		require.NoError(t, f.render())

		type materials interface{ MaterialBlock() *MaterialBlock }
		mb := f.renderer.Binder().(materials).MaterialBlock()
		require.NotNil(t, mb)
		for id, want := range []math.Vec4{
			math.NewVec4(1, 1, 1, 1), tinted.BaseColor,
			math.NewVec4(1, 1, 1, 1), tinted.BaseColor,
		} {
			assert.Equal(t, want, mb.MaterialConstants(uint32(id)).BaseColor, "%s geometry %d", binding, id)
		}
	}
}

func TestRenderSceneWithoutHitPrograms(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	f := newFrameFixture(t, rs, d, s, config.BindingModelEmbedded, 0, 64)

	require.NoError(t, f.render())
	assert.Equal(t, FrameDispatched, f.renderer.State())
	desc := f.renderer.LastDispatch()
	assert.Zero(t, desc.Hit.Count())
	assert.Zero(t, desc.HitStride)
	assert.Nil(t, s.BoundTopLevel())
	assert.Equal(t, BuildPathReleased, rs.Builder().LastBuildPath())
}

func TestRenderSceneHitProgramsDropToZero(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	with := newFrameFixture(t, rs, d, s, config.BindingModelEmbedded, 1, 64)
	require.NoError(t, with.render())
	require.NotNil(t, s.BoundTopLevel())
	live := d.LiveAccelerationStructures()

	without := newFrameFixture(t, rs, d, s, config.BindingModelEmbedded, 0, 64)
	require.NoError(t, without.render())
	assert.Nil(t, s.BoundTopLevel())

	_, err := s.Submit()
	require.NoError(t, err)
	rs.Transients().Collect()
	assert.Equal(t, live-1, d.LiveAccelerationStructures())

	// back to one hit program on the same vars: the structure is rebuilt
	require.NoError(t, with.render())
	assert.Equal(t, BuildPathRebuild, rs.Builder().LastBuildPath())
	assert.NotNil(t, s.BoundTopLevel())
}

func TestRenderSceneEmpty(t *testing.T) {
	rs, d, s := newTestScene(t, testOptions())
	f := newFrameFixture(t, rs, d, s, config.BindingModelTables, 2, 64)

	require.NoError(t, f.render())
	assert.Zero(t, f.renderer.LastDispatch().Hit.Count())
	assert.Zero(t, f.vars.GeometryCount())
}

func TestRenderSceneRefitsAcrossFrames(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	f := newFrameFixture(t, rs, d, s, config.BindingModelEmbedded, 1, 64)
	require.NoError(t, f.render())
	_, err := s.Submit()
	require.NoError(t, err)

	rs.ModelInstance(0, 0).Move(math.NewVec3(0, 1, 0), math.NewQuatIdentity(), math.NewVec3One())
	_, err = rs.Update(1)
	require.NoError(t, err)
	require.NoError(t, f.render())
	assert.Equal(t, BuildPathRefit, rs.Builder().LastBuildPath())

	// the record of geometry 0 carries both world matrices
	record := f.hitRecord(f.renderer.LastDispatch(), 0, 0)
	c := DecodeInstanceConstants(record[f.vars.IdentifierSize():])
	assert.Equal(t, math.NewVec3(0, 1, 0), c.World.Translation())
	assert.Equal(t, math.NewVec3(0, 0, 0), c.PrevWorld.Translation())
}

func TestRenderSceneDescriptorPoolExhausted(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	f := newFrameFixture(t, rs, d, s, config.BindingModelTables, 2, 8)
	failed := core.MetricsSnapshot().FailedFrames

	err := f.render()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrFrameFailed)
	assert.ErrorIs(t, err, core.ErrDescriptorPoolExhausted)
	assert.Equal(t, FrameFailed, f.renderer.State())
	assert.Equal(t, failed+1, core.MetricsSnapshot().FailedFrames)
	assert.Equal(t, 0, s.CountCommands(software.CommandTraceRays))
}

func TestRenderSceneProgramMismatch(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	f := newFrameFixture(t, rs, d, s, config.BindingModelEmbedded, 2, 64)

	// a state object compiled for a single hit group
	other := testProgram(t, config.BindingModelEmbedded, 1, 0, 2)
	f.state.SetProgram(other)

	err := f.render()
	assert.ErrorIs(t, err, core.ErrFrameFailed)
	assert.ErrorIs(t, err, core.ErrProgramNotFound)
	assert.Equal(t, FrameFailed, f.renderer.State())

	// recompiling for the right program recovers
	f.state.SetProgram(f.program)
	require.NoError(t, f.render())
	assert.Equal(t, FrameDispatched, f.renderer.State())
}

func TestRenderSceneBindsPerFrameData(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	rs.AddLight(&scene.Light{Name: "key", Type: scene.LightPoint, Position: math.NewVec3(1, 2, 3), Intensity: math.NewVec3One()})
	f := newFrameFixture(t, rs, d, s, config.BindingModelEmbedded, 1, 64)
	f.camera.SetPosition(math.NewVec3(0, 0, 9))
	output := &metadata.Texture{Name: "output"}
	f.renderer.SetOutput(output)
	require.NoError(t, f.render())

	global := f.vars.Global()
	refl := global.Reflection()
	constant := func(name string) []byte {
		c, ok := refl.GetConstant(name)
		require.True(t, ok, name)
		return global.Constants()[c.Offset : c.Offset+c.Size]
	}
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(constant(hitProgramCountName)))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(constant(lightCountName)))
	assert.Equal(t, float32(9), metadata.GetFloat32(constant(cameraPosName)[8:]))
	assert.Equal(t, math.NewVec4(1, 2, 3, float32(scene.LightPoint)), metadata.GetVec4(constant(lightsName)))
	assert.Equal(t, f.camera.GetViewProjection(), metadata.GetMat4(constant(viewProjMatName)))
	assert.Same(t, output, global.GetUav(refl.GetResourceBinding(OutputResourceName), 0).Texture)
}
