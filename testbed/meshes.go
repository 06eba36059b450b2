package testbed

import (
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

// newPlane is a unit quad in the y=0 plane facing +y.
func newPlane(name string, material *metadata.Material) *scene.Mesh {
	return scene.NewMesh(name, []math.Vec3{
		{X: -1, Z: 1}, {X: 1, Z: 1}, {X: 1, Z: -1}, {X: -1, Z: -1},
	}, []uint32{0, 1, 2, 0, 2, 3}, material)
}

// newCube spans [-1, 1] on every axis, faces wound counter clockwise
// seen from outside.
func newCube(name string, material *metadata.Material) *scene.Mesh {
	positions := []math.Vec3{
		{X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: -1, Y: 1, Z: -1},
		{X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1},
	}
	indices := []uint32{
		4, 5, 6, 4, 6, 7, // +z
		1, 0, 3, 1, 3, 2, // -z
		5, 1, 2, 5, 2, 6, // +x
		0, 4, 7, 0, 7, 3, // -x
		7, 6, 2, 7, 2, 3, // +y
		0, 1, 5, 0, 5, 4, // -y
	}
	return scene.NewMesh(name, positions, indices, material)
}
