package math

// NewExtentsEmpty returns inverted bounds that any Grow call replaces.
func NewExtentsEmpty() Extents3D {
	return Extents3D{
		Min: NewVec3Splat(K_INFINITY),
		Max: NewVec3Splat(-K_INFINITY),
	}
}

func (e Extents3D) IsEmpty() bool {
	return e.Min.X > e.Max.X || e.Min.Y > e.Max.Y || e.Min.Z > e.Max.Z
}

func (e Extents3D) Grow(p Vec3) Extents3D {
	return Extents3D{Min: e.Min.Min(p), Max: e.Max.Max(p)}
}

func (e Extents3D) Union(other Extents3D) Extents3D {
	if other.IsEmpty() {
		return e
	}
	if e.IsEmpty() {
		return other
	}
	return Extents3D{Min: e.Min.Min(other.Min), Max: e.Max.Max(other.Max)}
}

func (e Extents3D) Center() Vec3 {
	return e.Min.Add(e.Max).MulScalar(0.5)
}

func (e Extents3D) Size() Vec3 {
	return e.Max.Sub(e.Min)
}

// SurfaceArea is used as the split heuristic cost in the BVH builder.
func (e Extents3D) SurfaceArea() float32 {
	if e.IsEmpty() {
		return 0
	}
	d := e.Size()
	return 2 * (d.X*d.Y + d.Y*d.Z + d.Z*d.X)
}

// LongestAxis returns 0, 1 or 2 for x, y or z.
func (e Extents3D) LongestAxis() int {
	d := e.Size()
	if d.X >= d.Y && d.X >= d.Z {
		return 0
	}
	if d.Y >= d.Z {
		return 1
	}
	return 2
}

// Transform returns the bounds of the eight transformed corners.
func (e Extents3D) Transform(m Mat4) Extents3D {
	if e.IsEmpty() {
		return e
	}
	out := NewExtentsEmpty()
	for i := 0; i < 8; i++ {
		c := Vec3{e.Min.X, e.Min.Y, e.Min.Z}
		if i&1 != 0 {
			c.X = e.Max.X
		}
		if i&2 != 0 {
			c.Y = e.Max.Y
		}
		if i&4 != 0 {
			c.Z = e.Max.Z
		}
		out = out.Grow(m.TransformPoint(c))
	}
	return out
}
