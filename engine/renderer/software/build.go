package software

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

// mat4From3x4 turns an instance descriptor transform back into a
// row-vector matrix.
func mat4From3x4(t [12]float32) math.Mat4 {
	m := math.NewMat4Identity()
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			m.Data[col*4+row] = t[row*4+col]
		}
	}
	return m
}

func readVec3(data []byte, offset uint64) (math.Vec3, bool) {
	if offset+12 > uint64(len(data)) {
		return math.Vec3{}, false
	}
	return math.NewVec3(
		gomath.Float32frombits(binary.LittleEndian.Uint32(data[offset:])),
		gomath.Float32frombits(binary.LittleEndian.Uint32(data[offset+4:])),
		gomath.Float32frombits(binary.LittleEndian.Uint32(data[offset+8:])),
	), true
}

// gatherTriangles reads the triangle soup of every geometry, applying
// the geometry transform.
func gatherTriangles(geometries []metadata.GeometryDesc) ([]triangle, error) {
	var tris []triangle
	for gi, g := range geometries {
		if g.VertexBuffer == nil {
			return nil, fmt.Errorf("%w: geometry %d has no vertex buffer", core.ErrDeviceFailure, gi)
		}
		stride := uint64(g.VertexStride)
		if stride == 0 {
			stride = 12
		}
		xf := math.NewMat4Identity()
		if g.Transform != nil {
			xf = mat4From3x4(*g.Transform)
		}

		vertex := func(i uint32) (math.Vec3, error) {
			if i >= g.VertexCount {
				return math.Vec3{}, fmt.Errorf("%w: geometry %d index %d out of %d vertices", core.ErrDeviceFailure, gi, i, g.VertexCount)
			}
			p, ok := readVec3(g.VertexBuffer.Data, uint64(i)*stride)
			if !ok {
				return math.Vec3{}, fmt.Errorf("%w: geometry %d vertex %d past the end of '%s'", core.ErrDeviceFailure, gi, i, g.VertexBuffer.Name)
			}
			return xf.TransformPoint(p), nil
		}

		count := g.VertexCount
		if g.IndexBuffer != nil && g.IndexCount > 0 {
			count = g.IndexCount
		}
		for prim := uint32(0); prim+2 < count; prim += 3 {
			var t triangle
			t.geometry = uint32(gi)
			t.primitive = prim / 3
			for k := uint32(0); k < 3; k++ {
				idx := prim + k
				if g.IndexBuffer != nil && g.IndexCount > 0 {
					off := uint64(idx) * 4
					if off+4 > uint64(len(g.IndexBuffer.Data)) {
						return nil, fmt.Errorf("%w: geometry %d index %d past the end of '%s'", core.ErrDeviceFailure, gi, idx, g.IndexBuffer.Name)
					}
					idx = binary.LittleEndian.Uint32(g.IndexBuffer.Data[off:])
				}
				v, err := vertex(idx)
				if err != nil {
					return nil, err
				}
				t.v[k] = v
			}
			tris = append(tris, t)
		}
	}
	return tris, nil
}

func triangleBounds(t triangle) math.Extents3D {
	return math.NewExtentsEmpty().Grow(t.v[0]).Grow(t.v[1]).Grow(t.v[2])
}

func (d *Device) buildBottomLevel(s *structure, inputs *metadata.AccelerationStructureInputs, update bool) error {
	tris, err := gatherTriangles(inputs.Geometries)
	if err != nil {
		return err
	}
	if update {
		if s.bvh == nil || len(tris) != len(s.triangles) {
			return fmt.Errorf("%w: bottom level refit with %d triangles, built with %d", core.ErrDeviceFailure, len(tris), len(s.triangles))
		}
		s.triangles = tris
		s.bvh.refit(func(i int) math.Extents3D { return triangleBounds(s.triangles[i]) })
		return nil
	}

	items := make([]bvhItem, len(tris))
	for i, t := range tris {
		b := triangleBounds(t)
		items[i] = bvhItem{bounds: b, centroid: b.Center(), index: i}
	}
	s.triangles = tris
	s.geometryCount = uint32(len(inputs.Geometries))
	s.bvh = buildBvh(items)
	return nil
}

func (d *Device) readInstances(inputs *metadata.AccelerationStructureInputs) ([]instance, error) {
	if inputs.InstanceCount > 0 && inputs.Instances == nil {
		return nil, fmt.Errorf("%w: top level build without an instance buffer", core.ErrDeviceFailure)
	}
	var data []byte
	if inputs.Instances != nil {
		data = inputs.Instances.Data
	}
	need := uint64(inputs.InstanceCount) * metadata.InstanceDescSize
	if need > uint64(len(data)) {
		return nil, fmt.Errorf("%w: instance buffer holds %d bytes, %d instances need %d",
			core.ErrDeviceFailure, len(data), inputs.InstanceCount, need)
	}
	out := make([]instance, inputs.InstanceCount)
	for i := range out {
		desc := metadata.DecodeInstanceDesc(data[i*metadata.InstanceDescSize:])
		blas, ok := d.lookupStructure(desc.AccelerationStructure)
		if !ok || !blas.Built {
			return nil, fmt.Errorf("%w: instance %d references unknown bottom level structure 0x%x",
				core.ErrDeviceFailure, i, desc.AccelerationStructure)
		}
		bs := blas.InternalData.(*structure)
		toWorld := mat4From3x4(desc.Transform)
		out[i] = instance{
			desc:       desc,
			toWorld:    toWorld,
			toObject:   toWorld.Inverse(),
			blas:       bs,
			geometries: bs.geometryCount,
		}
	}
	return out, nil
}

func instanceBounds(in instance) math.Extents3D {
	return in.blas.bvh.rootBounds().Transform(in.toWorld)
}

func (d *Device) buildTopLevel(s *structure, inputs *metadata.AccelerationStructureInputs, update bool) error {
	instances, err := d.readInstances(inputs)
	if err != nil {
		return err
	}
	if update {
		if s.bvh == nil || len(instances) != len(s.instances) {
			return fmt.Errorf("%w: top level refit with %d instances, built with %d", core.ErrDeviceFailure, len(instances), len(s.instances))
		}
		s.instances = instances
		s.bvh.refit(func(i int) math.Extents3D { return instanceBounds(s.instances[i]) })
		return nil
	}

	items := make([]bvhItem, len(instances))
	for i, in := range instances {
		b := instanceBounds(in)
		items[i] = bvhItem{bounds: b, centroid: b.Center(), index: i}
	}
	s.instances = instances
	s.bvh = buildBvh(items)
	return nil
}
