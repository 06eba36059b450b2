package software

import (
	"github.com/chewxy/math32"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

type ray struct {
	origin    math.Vec3
	direction math.Vec3
	invDir    math.Vec3
}

func newRay(origin, direction math.Vec3) ray {
	return ray{
		origin:    origin,
		direction: direction,
		invDir:    math.NewVec3(1/direction.X, 1/direction.Y, 1/direction.Z),
	}
}

// hitsBox is the slab test against an axis aligned box.
func (r ray) hitsBox(b math.Extents3D, tMax float32) bool {
	if b.IsEmpty() {
		return false
	}
	tMin := float32(0)
	for axis := 0; axis < 3; axis++ {
		inv := r.invDir.Axis(axis)
		o := r.origin.Axis(axis)
		t0 := (b.Min.Axis(axis) - o) * inv
		t1 := (b.Max.Axis(axis) - o) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0 * Inf keeps the previous interval
		if !math32.IsNaN(t0) {
			tMin = math32.Max(tMin, t0)
		}
		if !math32.IsNaN(t1) {
			tMax = math32.Min(tMax, t1)
		}
		if tMin > tMax {
			return false
		}
	}
	return true
}

// intersectTriangle returns the ray distance of a hit, Moller-Trumbore.
// Back faces hit unless cullBack is set.
func (r ray) intersectTriangle(v0, v1, v2 math.Vec3, cullBack bool) (float32, bool) {
	const epsilon = 1e-7
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	p := r.direction.Cross(e2)
	det := e1.Dot(p)
	if cullBack && det < epsilon {
		return 0, false
	}
	if math32.Abs(det) < epsilon {
		return 0, false
	}
	inv := 1 / det
	s := r.origin.Sub(v0)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t <= epsilon {
		return 0, false
	}
	return t, true
}
