package scene

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

// MeshInstance places a mesh inside its model.
type MeshInstance struct {
	Name      string
	Transform math.Mat4
}

/**
 * @brief A model is a list of meshes, each drawn once per mesh
 * instance. Models are shared by every model instance placing them.
 */
type Model struct {
	ID            uuid.UUID
	Name          string
	Meshes        []*Mesh
	MeshInstances [][]MeshInstance
}

func NewModel(name string) *Model {
	return &Model{
		ID:   uuid.New(),
		Name: name,
	}
}

// AddMesh appends a mesh with one instance per transform. No
// transforms means a single identity instance.
func (m *Model) AddMesh(mesh *Mesh, transforms ...math.Mat4) int {
	if len(transforms) == 0 {
		transforms = []math.Mat4{math.NewMat4Identity()}
	}
	instances := make([]MeshInstance, len(transforms))
	for i, t := range transforms {
		instances[i] = MeshInstance{Name: mesh.Name, Transform: t}
	}
	m.Meshes = append(m.Meshes, mesh)
	m.MeshInstances = append(m.MeshInstances, instances)
	return len(m.Meshes) - 1
}

func (m *Model) MeshCount() int {
	return len(m.Meshes)
}

func (m *Model) MeshInstanceCount(mesh int) int {
	return len(m.MeshInstances[mesh])
}

func (m *Model) MeshInstance(mesh, instance int) MeshInstance {
	return m.MeshInstances[mesh][instance]
}

func (m *Model) HasBones() bool {
	for _, mesh := range m.Meshes {
		if mesh.HasBones() {
			return true
		}
	}
	return false
}

// Bounds covers every mesh instance in model space.
func (m *Model) Bounds() math.Extents3D {
	b := math.NewExtentsEmpty()
	for i, mesh := range m.Meshes {
		for _, inst := range m.MeshInstances[i] {
			b = b.Union(mesh.Bounds().Transform(inst.Transform))
		}
	}
	return b
}
