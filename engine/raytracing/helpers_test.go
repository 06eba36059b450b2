package raytracing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

// quad in the z=0 plane facing +z.
func newQuad(name string, material *metadata.Material) *scene.Mesh {
	return scene.NewMesh(name, []math.Vec3{
		{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1},
	}, []uint32{0, 1, 2, 0, 2, 3}, material)
}

func testOptions() SceneOptions {
	return SceneOptions{
		BuildFlags:          metadata.BuildFlagPreferFastTrace,
		MergeStaticMeshes:   true,
		AllowRefit:          true,
		MaxCachedTLAS:       1,
		TransientRingSize:   16,
		ValidateInstanceIDs: true,
	}
}

func newTestDevice() (*software.Device, *software.Stream) {
	d := software.NewDevice(software.Options{})
	return d, d.CreateCommandStream().(*software.Stream)
}

// twoGroupModel has two single instance meshes whose local transforms
// differ, so they cannot share a bottom level structure.
func twoGroupModel() *scene.Model {
	m := scene.NewModel("two-groups")
	m.AddMesh(newQuad("front", nil))
	m.AddMesh(newQuad("back", nil), math.NewMat4Translation(math.NewVec3(0, 0, -2)))
	return m
}

func newTestScene(t *testing.T, options SceneOptions, instances ...*scene.ModelInstance) (*RtScene, *software.Device, *software.Stream) {
	t.Helper()
	d, s := newTestDevice()
	rs := NewRtScene(d, s, options)
	for _, mi := range instances {
		_, err := rs.AddModelInstance(mi)
		require.NoError(t, err)
	}
	return rs, d, s
}

func placedAt(model *scene.Model, name string, at math.Vec3) *scene.ModelInstance {
	return scene.NewModelInstance(model, name, math.TransformFromPosition(at))
}

// testProgram declares hitGroups hit groups sharing one closest hit
// entry point and a miss program in each of missSlots.
func testProgram(t *testing.T, model config.BindingModel, hitGroups int, missSlots ...int) *RtProgram {
	t.Helper()
	desc := ProgramDesc{RayGen: "rayGen"}
	for _, i := range missSlots {
		desc.AddMiss(i, "miss")
	}
	for i := 0; i < hitGroups; i++ {
		desc.AddHitGroup("closestHit", "anyHit", "")
	}
	reflection := NewStandardReflection("test", desc, ReflectionOptions{BindingModel: model, ArraySize: 64})
	p, err := NewRtProgram("test", desc, reflection)
	require.NoError(t, err)
	return p
}
