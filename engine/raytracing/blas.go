package raytracing

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

const vertexPositionStride uint32 = 12

/**
 * @brief A set of consecutive meshes of a model sharing one bottom
 * level structure. Skinned meshes and meshes drawn several times get
 * a group of their own.
 */
type MeshGroup struct {
	/** @brief Indices into the model mesh list, consecutive. */
	Meshes   []int
	IsStatic bool
	Blas     *metadata.AccelerationStructure

	inputs metadata.AccelerationStructureInputs
}

func (g *MeshGroup) GeometryCount() int {
	return len(g.Meshes)
}

func (g *MeshGroup) FirstMesh() int {
	return g.Meshes[0]
}

/**
 * @brief A model promoted for ray tracing: the generic model plus its
 * mesh groups and their bottom level structures.
 */
type RtModel struct {
	Model *scene.Model

	groups     []*MeshGroup
	buildFlags metadata.BuildFlags
	device     renderer.Device
	owned      []*metadata.Buffer
}

/**
 * @brief Promotes model: uploads missing position and index streams,
 * groups the meshes and builds one bottom level structure per group on
 * stream.
 */
func NewRtModel(model *scene.Model, device renderer.Device, stream renderer.CommandStream, transients *TransientPool, flags metadata.BuildFlags, merge bool) (*RtModel, error) {
	m := &RtModel{
		Model:      model,
		buildFlags: flags,
		device:     device,
	}
	for _, mesh := range model.Meshes {
		if err := m.uploadMesh(mesh); err != nil {
			m.Release()
			return nil, err
		}
	}
	m.groups = groupMeshes(model, merge)
	for _, g := range m.groups {
		if err := m.createBottomLevel(g, stream, transients); err != nil {
			m.Release()
			return nil, err
		}
	}
	core.LogDebug("model '%s' promoted: %d meshes in %d groups", model.Name, model.MeshCount(), len(m.groups))
	return m, nil
}

func (m *RtModel) uploadMesh(mesh *scene.Mesh) error {
	if _, ok := mesh.Stream(scene.VertexPosition); !ok {
		b, err := m.createBuffer(mesh.Name+".position", metadata.Vec3sToBytes(mesh.Positions),
			metadata.BufferUsageVertex|metadata.BufferUsageStorage|metadata.BufferUsageAccelerationStructureInput)
		if err != nil {
			return err
		}
		b.Stride = vertexPositionStride
		mesh.SetStream(scene.VertexPosition, b)
	}
	if mesh.IndexBuffer == nil && len(mesh.Indices) > 0 {
		b, err := m.createBuffer(mesh.Name+".indices", metadata.Uint32sToBytes(mesh.Indices),
			metadata.BufferUsageIndex|metadata.BufferUsageStorage|metadata.BufferUsageAccelerationStructureInput)
		if err != nil {
			return err
		}
		b.Stride = 4
		mesh.IndexBuffer = b
	}
	return nil
}

func (m *RtModel) createBuffer(name string, data []byte, usage metadata.BufferUsage) (*metadata.Buffer, error) {
	b, err := m.device.CreateBuffer(name, uint64(len(data)), usage)
	if err != nil {
		return nil, fmt.Errorf("%w: creating '%s': %v", core.ErrDeviceFailure, name, err)
	}
	if err := m.device.WriteBuffer(b, 0, data); err != nil {
		m.device.DestroyBuffer(b)
		return nil, fmt.Errorf("%w: uploading '%s': %v", core.ErrDeviceFailure, name, err)
	}
	m.owned = append(m.owned, b)
	return b, nil
}

// groupMeshes splits the meshes of model into bottom level groups.
func groupMeshes(model *scene.Model, merge bool) []*MeshGroup {
	var groups []*MeshGroup
	var open *MeshGroup
	for i, mesh := range model.Meshes {
		switch {
		case mesh.HasBones():
			groups = append(groups, &MeshGroup{Meshes: []int{i}})
			open = nil
		case model.MeshInstanceCount(i) > 1 || !merge:
			groups = append(groups, &MeshGroup{Meshes: []int{i}, IsStatic: true})
			open = nil
		default:
			if open != nil && sameLocalTransform(model, open.FirstMesh(), i) {
				open.Meshes = append(open.Meshes, i)
				continue
			}
			open = &MeshGroup{Meshes: []int{i}, IsStatic: true}
			groups = append(groups, open)
		}
	}
	return groups
}

func sameLocalTransform(model *scene.Model, a, b int) bool {
	return model.MeshInstance(a, 0).Transform.Compare(model.MeshInstance(b, 0).Transform, 0)
}

func (m *RtModel) geometryDescs(g *MeshGroup) []metadata.GeometryDesc {
	descs := make([]metadata.GeometryDesc, len(g.Meshes))
	for i, idx := range g.Meshes {
		mesh := m.Model.Meshes[idx]
		vb, _ := mesh.Stream(scene.VertexPosition)
		d := metadata.GeometryDesc{
			VertexBuffer: vb,
			VertexStride: vertexPositionStride,
			VertexCount:  mesh.VertexCount,
			IndexBuffer:  mesh.IndexBuffer,
			IndexCount:   mesh.IndexCount,
			Flags:        metadata.GeometryFlagOpaque,
		}
		if mesh.Material != nil && mesh.Material.Flags&metadata.MaterialFlagAlphaTested != 0 {
			d.Flags = metadata.GeometryFlagNoDuplicateAnyHit
		}
		descs[i] = d
	}
	return descs
}

func (m *RtModel) createBottomLevel(g *MeshGroup, stream renderer.CommandStream, transients *TransientPool) error {
	flags := m.buildFlags
	if !g.IsStatic {
		flags |= metadata.BuildFlagAllowUpdate
	}
	g.inputs = metadata.AccelerationStructureInputs{
		Type:       metadata.AccelerationStructureBottomLevel,
		Flags:      flags,
		Geometries: m.geometryDescs(g),
	}
	info := m.device.GetAccelerationStructurePrebuildInfo(&g.inputs)
	blas, err := m.device.CreateAccelerationStructure(metadata.AccelerationStructureBottomLevel, info.ResultDataMaxSize, flags)
	if err != nil {
		return fmt.Errorf("%w: bottom level structure for '%s': %v", core.ErrDeviceFailure, m.Model.Name, err)
	}
	g.Blas = blas
	if err := m.build(g, stream, transients, false, info.ScratchDataSize); err != nil {
		return err
	}
	core.MetricsAdd(core.MetricBottomLevelBuild, 1)
	return nil
}

func (m *RtModel) build(g *MeshGroup, stream renderer.CommandStream, transients *TransientPool, update bool, scratchSize uint64) error {
	scratch, err := transients.Allocate(m.Model.Name+".blas.scratch", scratchSize, metadata.BufferUsageScratch|metadata.BufferUsageStorage)
	if err != nil {
		return err
	}
	inputs := g.inputs
	var src *metadata.AccelerationStructure
	if update {
		inputs.Flags |= metadata.BuildFlagPerformUpdate
		src = g.Blas
	}
	err = stream.BuildAccelerationStructure(&inputs, g.Blas, src, scratch)
	transients.RetireBuffer(scratch, stream.NextFenceValue())
	if err != nil {
		return fmt.Errorf("%w: building bottom level structure for '%s': %v", core.ErrDeviceFailure, m.Model.Name, err)
	}
	stream.AccelerationStructureBarrier(g.Blas)
	return nil
}

/**
 * @brief Re-uploads the positions of skinned meshes that changed and
 * refits their groups in place. Returns the number of refit groups.
 */
func (m *RtModel) RefitSkinned(stream renderer.CommandStream, transients *TransientPool) (int, error) {
	refit := 0
	for _, g := range m.groups {
		if g.IsStatic {
			continue
		}
		dirty := false
		for _, idx := range g.Meshes {
			mesh := m.Model.Meshes[idx]
			if !mesh.PositionsDirty() {
				continue
			}
			vb, _ := mesh.Stream(scene.VertexPosition)
			if err := m.device.WriteBuffer(vb, 0, metadata.Vec3sToBytes(mesh.Positions)); err != nil {
				return refit, fmt.Errorf("%w: uploading skinned positions of '%s': %v", core.ErrDeviceFailure, mesh.Name, err)
			}
			mesh.ClearPositionsDirty()
			dirty = true
		}
		if !dirty {
			continue
		}
		info := m.device.GetAccelerationStructurePrebuildInfo(&g.inputs)
		if err := m.build(g, stream, transients, true, info.UpdateScratchSize); err != nil {
			return refit, err
		}
		refit++
	}
	return refit, nil
}

func (m *RtModel) Groups() []*MeshGroup {
	return m.groups
}

func (m *RtModel) MeshCount() int {
	return m.Model.MeshCount()
}

func (m *RtModel) MeshInstanceCount(mesh int) int {
	return m.Model.MeshInstanceCount(mesh)
}

func (m *RtModel) Mesh(index int) *scene.Mesh {
	return m.Model.Meshes[index]
}

// GroupInstanceCount is how many times g is placed per model instance.
func (m *RtModel) GroupInstanceCount(g *MeshGroup) int {
	if len(g.Meshes) > 1 {
		return 1
	}
	return m.Model.MeshInstanceCount(g.FirstMesh())
}

// GroupTransform is the transform of instance gi of g relative to the model.
func (m *RtModel) GroupTransform(g *MeshGroup, gi int) math.Mat4 {
	return m.Model.MeshInstance(g.FirstMesh(), gi).Transform
}

func (m *RtModel) GroupDoubleSided(g *MeshGroup) bool {
	for _, idx := range g.Meshes {
		if m.Model.Meshes[idx].IsDoubleSided() {
			return true
		}
	}
	return false
}

// GeometriesPerInstance is the number of geometries one model instance emits.
func (m *RtModel) GeometriesPerInstance() int {
	n := 0
	for _, g := range m.groups {
		n += g.GeometryCount() * m.GroupInstanceCount(g)
	}
	return n
}

// Release destroys the bottom level structures and the streams the
// model uploaded itself.
func (m *RtModel) Release() {
	for _, g := range m.groups {
		if g.Blas != nil {
			m.device.DestroyAccelerationStructure(g.Blas)
			g.Blas = nil
		}
	}
	owned := make(map[*metadata.Buffer]bool, len(m.owned))
	for _, b := range m.owned {
		owned[b] = true
		m.device.DestroyBuffer(b)
	}
	for _, mesh := range m.Model.Meshes {
		if vb, ok := mesh.Stream(scene.VertexPosition); ok && owned[vb] {
			mesh.SetStream(scene.VertexPosition, nil)
		}
		if owned[mesh.IndexBuffer] {
			mesh.IndexBuffer = nil
		}
	}
	m.owned = nil
}
