package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMat4InverseRoundTrip(t *testing.T) {
	m := NewMat4Scale(NewVec3(2, 3, 4)).
		Mul(NewMat4EulerY(0.7)).
		Mul(NewMat4Translation(NewVec3(1, -2, 5)))

	inv := m.Inverse()
	assert.True(t, m.Mul(inv).Compare(NewMat4Identity(), 1e-4))

	p := NewVec3(0.5, 1.5, -3)
	back := inv.TransformPoint(m.TransformPoint(p))
	assert.True(t, back.Compare(p, 1e-4))
}

func TestMat4InverseSingular(t *testing.T) {
	assert.Equal(t, NewMat4Identity(), Mat4{}.Inverse())
}

func TestRowMajor3x4(t *testing.T) {
	m := NewMat4Translation(NewVec3(7, 8, 9))
	rows := m.RowMajor3x4()
	assert.Equal(t, [12]float32{1, 0, 0, 7, 0, 1, 0, 8, 0, 0, 1, 9}, rows)
}

func TestNormalMatrixUniformScale(t *testing.T) {
	m := NewMat4Scale(NewVec3(2, 2, 2)).Mul(NewMat4Translation(NewVec3(3, 0, 0)))
	rows := m.NormalMatrix()
	assert.InDelta(t, 0.5, rows[0].X, 1e-6)
	assert.InDelta(t, 0.5, rows[1].Y, 1e-6)
	assert.InDelta(t, 0.5, rows[2].Z, 1e-6)
	assert.Equal(t, float32(0), rows[0].W)
}

func TestTransformOrder(t *testing.T) {
	tr := TransformFromPositionRotationScale(
		NewVec3(10, 0, 0),
		NewQuatFromAxisAngle(NewVec3(0, 1, 0), K_HALF_PI, true),
		NewVec3(2, 2, 2))
	p := tr.GetLocal().TransformPoint(NewVec3(1, 0, 0))
	// scaled to (2,0,0), rotated 90 degrees about +y to (0,0,-2), then translated
	assert.True(t, p.Compare(NewVec3(10, 0, -2), 1e-4), "got %v", p)

	child := TransformFromPosition(NewVec3(0, 1, 0))
	child.Parent = TransformFromPosition(NewVec3(0, 0, 5))
	assert.True(t, child.GetWorld().Translation().Compare(NewVec3(0, 1, 5), 1e-6))
}

func TestExtents(t *testing.T) {
	e := NewExtentsEmpty()
	assert.True(t, e.IsEmpty())
	e = e.Grow(NewVec3(-1, 0, 0)).Grow(NewVec3(1, 2, 3))
	assert.False(t, e.IsEmpty())
	assert.Equal(t, 2, e.LongestAxis())
	assert.Equal(t, NewVec3(0, 1, 1.5), e.Center())

	moved := e.Transform(NewMat4Translation(NewVec3(1, 1, 1)))
	assert.Equal(t, NewVec3(0, 1, 1), moved.Min)
	assert.Equal(t, e, NewExtentsEmpty().Union(e))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint32(64), AlignUp(uint32(33), 32))
	assert.Equal(t, uint32(32), AlignUp(uint32(32), 32))
	assert.Equal(t, uint64(0), AlignUp(uint64(0), 64))
}
