package raytracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeShape describes per model: instance count and mesh instance counts.
type fakeShape []struct {
	instances int
	meshes    []int
}

func (f fakeShape) ModelCount() int                   { return len(f) }
func (f fakeShape) ModelInstanceCount(m int) int      { return f[m].instances }
func (f fakeShape) MeshCount(m int) int               { return len(f[m].meshes) }
func (f fakeShape) MeshInstanceCount(m, mesh int) int { return f[m].meshes[mesh] }

func TestInstanceIndexerRankMatchesQuery(t *testing.T) {
	tests := []struct {
		name  string
		shape fakeShape
		total uint32
	}{
		{"empty", fakeShape{}, 0},
		{"single", fakeShape{{1, []int{1}}}, 1},
		{"instanced meshes", fakeShape{{1, []int{3, 1, 2}}}, 6},
		{"instanced models", fakeShape{{4, []int{1, 2}}}, 12},
		{"mixed", fakeShape{{2, []int{1, 1}}, {3, []int{2}}, {1, []int{1, 4, 1}}}, 4 + 6 + 6},
		{"model without meshes", fakeShape{{2, nil}, {1, []int{1}}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := NewInstanceIndexer(tt.shape)
			assert.Equal(t, tt.total, ix.Total())
			require.NoError(t, ix.Validate())

			visited := uint32(0)
			ix.Enumerate(func(k InstanceKey, rank uint32) {
				assert.Equal(t, visited, rank)
				assert.Equal(t, rank, ix.InstanceID(k), "key %s", k)
				visited++
			})
			assert.Equal(t, tt.total, visited)
		})
	}
}

func TestInstanceIndexerModelMajorOrder(t *testing.T) {
	ix := NewInstanceIndexer(fakeShape{{2, []int{1, 2}}, {1, []int{1}}})

	assert.Equal(t, uint32(0), ix.InstanceID(InstanceKey{0, 0, 0, 0}))
	assert.Equal(t, uint32(1), ix.InstanceID(InstanceKey{0, 0, 1, 0}))
	assert.Equal(t, uint32(2), ix.InstanceID(InstanceKey{0, 0, 1, 1}))
	assert.Equal(t, uint32(3), ix.InstanceID(InstanceKey{0, 1, 0, 0}))
	assert.Equal(t, uint32(5), ix.InstanceID(InstanceKey{0, 1, 1, 1}))
	assert.Equal(t, uint32(6), ix.InstanceID(InstanceKey{1, 0, 0, 0}))
}
