package scene

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

/** @brief Named vertex streams a mesh may carry. */
type VertexSemantic int

const (
	VertexPosition VertexSemantic = iota
	VertexNormal
	VertexBitangent
	VertexTexCoord
	VertexLightmapUV
	VertexPrevPosition
	VertexBoneIDs
	VertexBoneWeights
	VertexSemanticCount
)

var semanticNames = [VertexSemanticCount]string{
	"position",
	"normal",
	"bitangent",
	"texC",
	"lightmapUVs",
	"prevPosition",
	"boneIds",
	"boneWeights",
}

func (s VertexSemantic) String() string {
	if s < 0 || s >= VertexSemanticCount {
		return fmt.Sprintf("semantic(%d)", int(s))
	}
	return semanticNames[s]
}

/**
 * @brief Triangle geometry: device vertex streams keyed by semantic,
 * a 32 bit index buffer and a CPU copy of the positions used for
 * bounds and bottom level builds.
 */
type Mesh struct {
	ID   uuid.UUID
	Name string

	Positions   []math.Vec3
	Indices     []uint32
	VertexCount uint32
	IndexCount  uint32

	Streams     map[VertexSemantic]*metadata.Buffer
	IndexBuffer *metadata.Buffer
	Material    *metadata.Material
	BoneCount   uint32

	bounds         math.Extents3D
	positionsDirty bool
}

func NewMesh(name string, positions []math.Vec3, indices []uint32, material *metadata.Material) *Mesh {
	m := &Mesh{
		ID:          uuid.New(),
		Name:        name,
		Positions:   positions,
		Indices:     indices,
		VertexCount: uint32(len(positions)),
		IndexCount:  uint32(len(indices)),
		Streams:     make(map[VertexSemantic]*metadata.Buffer),
		Material:    material,
	}
	m.recomputeBounds()
	return m
}

func (m *Mesh) recomputeBounds() {
	b := math.NewExtentsEmpty()
	for _, p := range m.Positions {
		b = b.Grow(p)
	}
	m.bounds = b
}

func (m *Mesh) Bounds() math.Extents3D {
	return m.bounds
}

func (m *Mesh) SetStream(semantic VertexSemantic, buffer *metadata.Buffer) {
	m.Streams[semantic] = buffer
}

// Stream returns the buffer bound to semantic, if the layout has one.
func (m *Mesh) Stream(semantic VertexSemantic) (*metadata.Buffer, bool) {
	b, ok := m.Streams[semantic]
	return b, ok && b != nil
}

func (m *Mesh) HasBones() bool {
	return m.BoneCount > 0
}

func (m *Mesh) IsDoubleSided() bool {
	return m.Material.IsDoubleSided()
}

// UpdatePositions replaces the skinned vertex positions. Topology is
// unchanged, so the bottom level structure can be refit.
func (m *Mesh) UpdatePositions(positions []math.Vec3) error {
	if uint32(len(positions)) != m.VertexCount {
		return fmt.Errorf("mesh '%s': %d positions, topology has %d vertices", m.Name, len(positions), m.VertexCount)
	}
	m.Positions = positions
	m.positionsDirty = true
	m.recomputeBounds()
	return nil
}

func (m *Mesh) PositionsDirty() bool {
	return m.positionsDirty
}

func (m *Mesh) ClearPositionsDirty() {
	m.positionsDirty = false
}
