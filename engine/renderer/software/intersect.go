package software

import (
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

// Hit describes the closest intersection of a ray with a top level structure.
type Hit struct {
	T              float32
	InstanceIndex  uint32
	InstanceID     uint32
	GeometryIndex  uint32
	PrimitiveIndex uint32
	// HitGroupIndex is the hit record the hardware would select for
	// ray contribution 0.
	HitGroupIndex uint32
}

func (s *structure) clone() *structure {
	c := &structure{
		asType:        s.asType,
		geometryCount: s.geometryCount,
		triangles:     append([]triangle(nil), s.triangles...),
		instances:     append([]instance(nil), s.instances...),
	}
	if s.bvh != nil {
		c.bvh = &bvh{
			nodes: append([]bvhNode(nil), s.bvh.nodes...),
			items: append([]bvhItem(nil), s.bvh.items...),
			stats: s.bvh.stats,
		}
	}
	return c
}

/**
 * @brief Intersect casts a ray against tlas the way the traversal
 * hardware does: instance mask, transform, cull flag and hit group
 * addressing included. hitStride is the geometry multiplier.
 */
func (d *Device) Intersect(tlas *metadata.AccelerationStructure, origin, direction math.Vec3, mask uint8, hitStride uint32) (Hit, bool) {
	if tlas == nil || !tlas.Built {
		return Hit{}, false
	}
	ts, ok := tlas.InternalData.(*structure)
	if !ok || ts.bvh == nil {
		return Hit{}, false
	}

	var best Hit
	found := false
	worldRay := newRay(origin, direction)
	ts.bvh.traverse(worldRay, math.K_INFINITY, func(item bvhItem, tMax float32) float32 {
		in := ts.instances[item.index]
		if in.desc.Mask&mask == 0 {
			return tMax
		}
		o := in.toObject.TransformPoint(origin)
		dir := in.toObject.TransformPoint(origin.Add(direction)).Sub(o)
		local := newRay(o, dir)
		cullBack := in.desc.Flags&metadata.InstanceFlagTriangleCullDisable == 0

		return in.blas.bvh.traverse(local, tMax, func(tri bvhItem, tMax float32) float32 {
			t := in.blas.triangles[tri.index]
			dist, hit := local.intersectTriangle(t.v[0], t.v[1], t.v[2], cullBack)
			if !hit || dist >= tMax {
				return tMax
			}
			found = true
			best = Hit{
				T:              dist,
				InstanceIndex:  uint32(item.index),
				InstanceID:     in.desc.InstanceID,
				GeometryIndex:  t.geometry,
				PrimitiveIndex: t.primitive,
				HitGroupIndex:  in.desc.HitGroupOffset + t.geometry*hitStride,
			}
			return dist
		})
	})
	return best, found
}
