package raytracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

var down = math.NewVec3(0, 0, -1)

func twoInstanceScene(t *testing.T, options SceneOptions) (*RtScene, *software.Device, *software.Stream) {
	model := twoGroupModel()
	return newTestScene(t, options,
		placedAt(model, "a", math.NewVec3(0, 0, 0)),
		placedAt(model, "b", math.NewVec3(10, 0, 0)))
}

func TestTopLevelInstanceLayout(t *testing.T) {
	rs, d, _ := twoInstanceScene(t, testOptions())
	defer rs.Release()
	require.Len(t, rs.RtModel(0).Groups(), 2)

	testCases := []struct {
		h       uint32
		offsets []uint32
	}{
		{1, []uint32{0, 1, 2, 3}},
		{2, []uint32{0, 2, 4, 6}},
		{3, []uint32{0, 3, 6, 9}},
	}
	for _, tc := range testCases {
		tlas, err := rs.TopLevel(tc.h)
		require.NoError(t, err)
		require.NotNil(t, tlas)
		assert.Equal(t, BuildPathRebuild, rs.Builder().LastBuildPath())
		assert.Equal(t, uint32(4), rs.GeometryCount())
		assert.Equal(t, uint32(4), rs.Builder().InstanceCount())

		descs := rs.Builder().Instances()
		require.Len(t, descs, 4)
		for i, d := range descs {
			assert.Equal(t, uint32(i), d.InstanceID, "h=%d instance %d", tc.h, i)
			assert.Equal(t, tc.offsets[i], d.HitGroupOffset, "h=%d instance %d", tc.h, i)
			assert.Equal(t, uint8(metadata.InstanceMaskAll), d.Mask)
		}
		assert.Equal(t, rs.Indexer().Total(), rs.GeometryCount())

		hit, ok := d.Intersect(tlas, math.NewVec3(10, 0, 5), down, metadata.InstanceMaskAll, 1)
		require.True(t, ok)
		assert.Equal(t, uint32(2), hit.InstanceID)
		assert.Equal(t, 2*tc.h, hit.HitGroupIndex)
		assert.InDelta(t, 5, hit.T, 1e-4)
	}
}

func TestTopLevelStaticTransforms(t *testing.T) {
	rs, _, _ := twoInstanceScene(t, testOptions())
	defer rs.Release()
	_, err := rs.TopLevel(1)
	require.NoError(t, err)

	descs := rs.Builder().Instances()
	local := math.NewMat4Translation(math.NewVec3(0, 0, -2))
	world := rs.ModelInstanceWorld(0, 1)
	assert.Equal(t, world.RowMajor3x4(), descs[2].Transform)
	assert.Equal(t, local.Mul(world).RowMajor3x4(), descs[3].Transform)
	assert.Equal(t, float32(10), descs[3].Transform[3])
	assert.Equal(t, float32(-2), descs[3].Transform[11])
}

func TestTopLevelSkinnedGroupUsesModelWorld(t *testing.T) {
	model := scene.NewModel("skinned")
	mesh := newQuad("body", nil)
	mesh.BoneCount = 1
	model.AddMesh(mesh, math.NewMat4Translation(math.NewVec3(0, 7, 0)))
	rs, _, _ := newTestScene(t, testOptions(), placedAt(model, "a", math.NewVec3(1, 2, 3)))
	defer rs.Release()

	_, err := rs.TopLevel(1)
	require.NoError(t, err)
	descs := rs.Builder().Instances()
	require.Len(t, descs, 1)
	assert.Equal(t, rs.ModelInstanceWorld(0, 0).RowMajor3x4(), descs[0].Transform)
}

func TestTopLevelDoubleSidedDisablesCulling(t *testing.T) {
	twoSided := scene.NewMaterial(metadata.MaterialConfig{Name: "two-sided", DoubleSided: true})
	model := scene.NewModel("mixed")
	model.AddMesh(newQuad("single", nil))
	model.AddMesh(newQuad("double", twoSided))
	model.AddMesh(newQuad("apart", nil), math.NewMat4Translation(math.NewVec3(5, 0, 0)))
	rs, d, _ := newTestScene(t, testOptions(), placedAt(model, "a", math.NewVec3(0, 0, 0)))
	defer rs.Release()

	tlas, err := rs.TopLevel(1)
	require.NoError(t, err)
	descs := rs.Builder().Instances()
	require.Len(t, descs, 2)
	assert.NotZero(t, descs[0].Flags&metadata.InstanceFlagTriangleCullDisable)
	assert.Zero(t, descs[1].Flags&metadata.InstanceFlagTriangleCullDisable)

	// from behind: only the merged group is visible
	_, ok := d.Intersect(tlas, math.NewVec3(0, 0, -5), math.NewVec3(0, 0, 1), metadata.InstanceMaskAll, 1)
	assert.True(t, ok)
	_, ok = d.Intersect(tlas, math.NewVec3(5, 0, -5), math.NewVec3(0, 0, 1), metadata.InstanceMaskAll, 1)
	assert.False(t, ok)
}

func TestTopLevelCacheHit(t *testing.T) {
	rs, _, s := twoInstanceScene(t, testOptions())
	defer rs.Release()

	first, err := rs.TopLevel(1)
	require.NoError(t, err)
	builds := s.CountCommands(software.CommandBuildTopLevel)

	again, err := rs.TopLevel(1)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, BuildPathCached, rs.Builder().LastBuildPath())
	assert.Equal(t, builds, s.CountCommands(software.CommandBuildTopLevel))

	changed, err := rs.Update(0)
	require.NoError(t, err)
	assert.False(t, changed)
	again, err = rs.TopLevel(1)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, BuildPathCached, rs.Builder().LastBuildPath())
}

func TestTopLevelRefitAfterMove(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	defer rs.Release()

	first, err := rs.TopLevel(1)
	require.NoError(t, err)
	assert.True(t, first.Flags.Has(metadata.BuildFlagAllowUpdate))

	rs.ModelInstance(0, 1).Move(math.NewVec3(10, 5, 0), math.NewQuatIdentity(), math.NewVec3One())
	changed, err := rs.Update(1)
	require.NoError(t, err)
	assert.True(t, changed)

	refit, err := rs.TopLevel(1)
	require.NoError(t, err)
	assert.Same(t, first, refit)
	assert.Equal(t, BuildPathRefit, rs.Builder().LastBuildPath())
	assert.Equal(t, 1, s.CountCommands(software.CommandRefitTopLevel))
	assert.Equal(t, uint32(1), refit.Updates)

	hit, ok := d.Intersect(refit, math.NewVec3(10, 5, 5), down, metadata.InstanceMaskAll, 1)
	require.True(t, ok)
	assert.Equal(t, uint32(2), hit.InstanceID)
	_, ok = d.Intersect(refit, math.NewVec3(10, 0, 5), down, metadata.InstanceMaskAll, 1)
	assert.False(t, ok)
}

func TestTopLevelRebuildsWithoutRefit(t *testing.T) {
	options := testOptions()
	options.AllowRefit = false
	rs, _, s := twoInstanceScene(t, options)
	defer rs.Release()

	tlas, err := rs.TopLevel(1)
	require.NoError(t, err)
	assert.False(t, tlas.Flags.Has(metadata.BuildFlagAllowUpdate))
	rs.ModelInstance(0, 0).Move(math.NewVec3(0, 3, 0), math.NewQuatIdentity(), math.NewVec3One())
	_, err = rs.Update(1)
	require.NoError(t, err)

	_, err = rs.TopLevel(1)
	require.NoError(t, err)
	assert.Equal(t, BuildPathRebuild, rs.Builder().LastBuildPath())

	// a refit request cannot update a structure created without the capability
	rs.Builder().Invalidate()
	rs.Builder().RequestRefit()
	_, err = rs.TopLevel(1)
	require.NoError(t, err)
	assert.Equal(t, BuildPathRebuild, rs.Builder().LastBuildPath())
	assert.Equal(t, 0, s.CountCommands(software.CommandRefitTopLevel))
	assert.Equal(t, 3, s.CountCommands(software.CommandBuildTopLevel))
}

func TestTopLevelTopologyChangeRebuilds(t *testing.T) {
	rs, _, _ := twoInstanceScene(t, testOptions())
	defer rs.Release()

	_, err := rs.TopLevel(1)
	require.NoError(t, err)
	rs.Builder().RequestRefit()

	_, err = rs.AddModelInstance(placedAt(rs.RtModel(0).Model, "c", math.NewVec3(-10, 0, 0)))
	require.NoError(t, err)
	_, err = rs.TopLevel(1)
	require.NoError(t, err)
	assert.Equal(t, BuildPathRebuild, rs.Builder().LastBuildPath())
	assert.Equal(t, uint32(6), rs.GeometryCount())
	assert.Equal(t, uint32(6), rs.Indexer().Total())
}

func TestTopLevelReleasedWithoutHitPrograms(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	defer rs.Release()

	_, err := rs.TopLevel(1)
	require.NoError(t, err)
	live := d.LiveAccelerationStructures()

	tlas, err := rs.TopLevel(0)
	require.NoError(t, err)
	assert.Nil(t, tlas)
	assert.Equal(t, BuildPathReleased, rs.Builder().LastBuildPath())
	assert.Equal(t, uint32(0), rs.GeometryCount())
	assert.Nil(t, rs.Builder().Current())
	assert.Equal(t, 0, rs.Builder().CachedCount())

	_, err = s.Submit()
	require.NoError(t, err)
	rs.Transients().Collect()
	assert.Equal(t, live-1, d.LiveAccelerationStructures())
}

func TestTopLevelEmptyScene(t *testing.T) {
	rs, _, _ := newTestScene(t, testOptions())
	defer rs.Release()

	tlas, err := rs.TopLevel(4)
	require.NoError(t, err)
	assert.Nil(t, tlas)
	assert.Equal(t, BuildPathReleased, rs.Builder().LastBuildPath())
}

func TestTopLevelLeastRecentlyUsedCache(t *testing.T) {
	options := testOptions()
	options.MaxCachedTLAS = 2
	rs, _, _ := twoInstanceScene(t, options)
	defer rs.Release()

	one, err := rs.TopLevel(1)
	require.NoError(t, err)
	_, err = rs.TopLevel(2)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Builder().CachedCount())

	again, err := rs.TopLevel(1)
	require.NoError(t, err)
	assert.Same(t, one, again)
	assert.Equal(t, BuildPathCached, rs.Builder().LastBuildPath())

	_, err = rs.TopLevel(3)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Builder().CachedCount())

	// h=2 was the least recently used entry
	_, err = rs.TopLevel(1)
	require.NoError(t, err)
	assert.Equal(t, BuildPathCached, rs.Builder().LastBuildPath())
	_, err = rs.TopLevel(2)
	require.NoError(t, err)
	assert.Equal(t, BuildPathRebuild, rs.Builder().LastBuildPath())

	// h=0 releases every cached entry, not just the current one
	tlas, err := rs.TopLevel(0)
	require.NoError(t, err)
	assert.Nil(t, tlas)
	assert.Equal(t, 0, rs.Builder().CachedCount())
	assert.Nil(t, rs.Builder().Current())

	_, err = rs.TopLevel(1)
	require.NoError(t, err)
	assert.Equal(t, BuildPathRebuild, rs.Builder().LastBuildPath())
}

// skewedSource reports an indexer that disagrees with the enumeration.
type skewedSource struct {
	*RtScene
	ix *InstanceIndexer
}

func (s skewedSource) Indexer() *InstanceIndexer {
	return s.ix
}

func TestTopLevelValidationPanicsOnMismatch(t *testing.T) {
	rs, d, s := twoInstanceScene(t, testOptions())
	defer rs.Release()

	skewed := skewedSource{
		RtScene: rs,
		ix:      NewInstanceIndexer(fakeShape{{instances: 2, meshes: []int{2, 1}}}),
	}
	builder := NewTopLevelBuilder(d, s, rs.Transients(), metadata.BuildFlagNone, true, 1, true)
	defer builder.Release()
	assert.Panics(t, func() { _, _ = builder.Build(skewed, 1) })

	unchecked := NewTopLevelBuilder(d, s, rs.Transients(), metadata.BuildFlagNone, true, 1, false)
	defer unchecked.Release()
	assert.NotPanics(t, func() {
		tlas, err := unchecked.Build(skewed, 1)
		assert.NoError(t, err)
		assert.NotNil(t, tlas)
	})
}
