package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

func quad(name string) *Mesh {
	return NewMesh(name, []math.Vec3{
		{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1},
	}, []uint32{0, 1, 2, 0, 2, 3}, nil)
}

func TestPathSample(t *testing.T) {
	p := NewPath("slide", false)
	p.AddKeyframe(Keyframe{Time: 2, Position: math.NewVec3(10, 0, 0)})
	p.AddKeyframe(Keyframe{Time: 0, Position: math.NewVec3Zero()})
	require.Equal(t, 2, p.KeyframeCount())

	tests := []struct {
		t    float64
		want math.Vec3
	}{
		{-1, math.NewVec3Zero()},
		{0, math.NewVec3Zero()},
		{1, math.NewVec3(5, 0, 0)},
		{2, math.NewVec3(10, 0, 0)},
		{5, math.NewVec3(10, 0, 0)},
	}
	for _, tt := range tests {
		k := p.Sample(tt.t)
		assert.True(t, k.Position.Compare(tt.want, 1e-5), "t=%v got %v", tt.t, k.Position)
		assert.True(t, k.Scale.Compare(math.NewVec3One(), 0))
	}
}

func TestPathLoops(t *testing.T) {
	p := NewPath("loop", true)
	p.AddKeyframe(Keyframe{Time: 0, Position: math.NewVec3Zero()})
	p.AddKeyframe(Keyframe{Time: 4, Position: math.NewVec3(0, 8, 0)})

	k := p.Sample(5)
	assert.True(t, k.Position.Compare(math.NewVec3(0, 2, 0), 1e-5), "got %v", k.Position)
}

func TestPathAttachDetach(t *testing.T) {
	model := NewModel("m")
	model.AddMesh(quad("q"))
	a := NewModelInstance(model, "a", nil)
	b := NewModelInstance(model, "b", nil)

	p := NewPath("p", false)
	p.Attach(a)
	p.Attach(a)
	p.Attach(b)
	require.Len(t, p.AttachedObjects(), 2)

	p.Detach(a)
	require.Len(t, p.AttachedObjects(), 1)
	assert.Equal(t, b.ObjectID(), p.AttachedObjects()[0].ObjectID())
}

func TestSceneUpdateAnimatesAndTracksPreviousWorld(t *testing.T) {
	model := NewModel("m")
	model.AddMesh(quad("q"))
	mi := NewModelInstance(model, "mi", nil)

	s := New()
	assert.Equal(t, 0, s.AddModelInstance(mi))
	s.Extents()
	require.False(t, s.ExtentsDirty())

	p := NewPath("p", false)
	p.AddKeyframe(Keyframe{Time: 0, Position: math.NewVec3Zero()})
	p.AddKeyframe(Keyframe{Time: 1, Position: math.NewVec3(4, 0, 0)})
	p.Attach(mi)
	s.AddPath(p)

	assert.True(t, s.Update(0))
	assert.False(t, s.ExtentsDirty())

	assert.True(t, s.Update(0.5))
	assert.True(t, s.ExtentsDirty())
	assert.True(t, mi.World().Translation().Compare(math.NewVec3(2, 0, 0), 1e-5))
	assert.True(t, mi.PrevWorld().Translation().Compare(math.NewVec3Zero(), 1e-5))

	e := s.Extents()
	assert.True(t, e.Min.Compare(math.NewVec3(1, -1, 0), 1e-5), "min %v", e.Min)
	assert.True(t, e.Max.Compare(math.NewVec3(3, 1, 0), 1e-5), "max %v", e.Max)
	assert.False(t, s.ExtentsDirty())

	s.Update(0.5)
	assert.True(t, mi.PrevWorld().Compare(mi.World(), 0))
	assert.False(t, s.ExtentsDirty())
}

func TestManualMoveIsCommitted(t *testing.T) {
	model := NewModel("m")
	model.AddMesh(quad("q"))
	mi := NewModelInstance(model, "mi", nil)
	s := New()
	s.AddModelInstance(mi)
	s.Update(0)
	s.Extents()

	mi.Move(math.NewVec3(0, 3, 0), math.NewQuatIdentity(), math.NewVec3One())
	assert.True(t, s.Update(1))
	assert.True(t, s.ExtentsDirty())
	assert.True(t, mi.PrevWorld().Translation().Compare(math.NewVec3Zero(), 0))
	assert.True(t, mi.World().Translation().Compare(math.NewVec3(0, 3, 0), 1e-6))
}

func TestModelBoundsCoverMeshInstances(t *testing.T) {
	model := NewModel("m")
	idx := model.AddMesh(quad("q"),
		math.NewMat4Identity(),
		math.NewMat4Translation(math.NewVec3(5, 0, 0)),
	)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 2, model.MeshInstanceCount(0))

	b := model.Bounds()
	assert.True(t, b.Min.Compare(math.NewVec3(-1, -1, 0), 1e-6))
	assert.True(t, b.Max.Compare(math.NewVec3(6, 1, 0), 1e-6))
}

func TestDeleteModel(t *testing.T) {
	a, b := NewModel("a"), NewModel("b")
	a.AddMesh(quad("qa"))
	b.AddMesh(quad("qb"))
	s := New()
	s.AddModelInstance(NewModelInstance(a, "a0", nil))
	s.AddModelInstance(NewModelInstance(b, "b0", nil))
	s.AddModelInstance(NewModelInstance(b, "b1", nil))
	require.Equal(t, 2, s.ModelCount())
	assert.Equal(t, 2, s.ModelInstanceCount(1))

	lift := NewPath("lift", false)
	lift.AddKeyframe(Keyframe{Time: 0})
	lift.AddKeyframe(Keyframe{Time: 1, Position: math.NewVec3(0, 5, 0)})
	lift.Attach(s.ModelInstance(0, 0))
	lift.Attach(s.ModelInstance(1, 1))
	s.AddPath(lift)

	s.DeleteModel(0)
	require.Equal(t, 1, s.ModelCount())
	assert.Equal(t, b, s.Model(0))
	assert.Equal(t, 2, s.ModelInstanceCount(0))
	require.Len(t, lift.AttachedObjects(), 1)
	assert.Equal(t, s.ModelInstance(0, 1).ObjectID(), lift.AttachedObjects()[0].ObjectID())
}

func TestMeshUpdatePositions(t *testing.T) {
	m := quad("q")
	assert.Error(t, m.UpdatePositions([]math.Vec3{{}}))
	require.NoError(t, m.UpdatePositions([]math.Vec3{{}, {X: 2}, {X: 2, Y: 2}, {Y: 2}}))
	assert.True(t, m.PositionsDirty())
	assert.True(t, m.Bounds().Max.Compare(math.NewVec3(2, 2, 0), 0))
	m.ClearPositionsDirty()
	assert.False(t, m.PositionsDirty())
}

func TestSemanticNames(t *testing.T) {
	assert.Equal(t, "texC", VertexTexCoord.String())
	assert.Equal(t, "prevPosition", VertexPrevPosition.String())
	assert.Equal(t, "semantic(42)", VertexSemantic(42).String())
}
