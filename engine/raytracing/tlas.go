package raytracing

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

// BuildPath records what the last top level request did.
type BuildPath int

const (
	BuildPathNone BuildPath = iota
	BuildPathCached
	BuildPathRebuild
	BuildPathRefit
	BuildPathReleased
)

func (p BuildPath) String() string {
	switch p {
	case BuildPathCached:
		return "cached"
	case BuildPathRebuild:
		return "rebuild"
	case BuildPathRefit:
		return "refit"
	case BuildPathReleased:
		return "released"
	}
	return "none"
}

// TopLevelSource is what the builder enumerates instances from.
type TopLevelSource interface {
	SceneShape
	RtModel(model int) *RtModel
	ModelInstanceWorld(model, instance int) math.Mat4
	// TopologyGeneration changes whenever models or instances are added or removed.
	TopologyGeneration() uint64
	Indexer() *InstanceIndexer
}

type tlasEntry struct {
	hitProgramCount uint32
	tlas            *metadata.AccelerationStructure
	instanceCount   uint32
	geometryCount   uint32
	topology        uint64
	stale           bool
	lastUse         uint64
}

/**
 * @brief Builds and caches the top level structure per hit program
 * count. Entries are evicted least recently used past the configured
 * bound; a bound of one keeps a single structure alive.
 */
type TopLevelBuilder struct {
	device     renderer.Device
	stream     renderer.CommandStream
	transients *TransientPool
	flags      metadata.BuildFlags
	maxCached  int
	validate   bool

	entries        []*tlasEntry
	current        *tlasEntry
	refitRequested bool
	lastPath       BuildPath
	lastInstances  []metadata.InstanceDesc
	useCounter     uint64
}

// NewTopLevelBuilder creates structures with flags. allowUpdate requests
// update capability at creation, without it every change rebuilds.
func NewTopLevelBuilder(device renderer.Device, stream renderer.CommandStream, transients *TransientPool, flags metadata.BuildFlags, allowUpdate bool, maxCached int, validate bool) *TopLevelBuilder {
	if maxCached < 1 {
		maxCached = 1
	}
	flags &^= metadata.BuildFlagPerformUpdate
	if allowUpdate {
		flags |= metadata.BuildFlagAllowUpdate
	}
	return &TopLevelBuilder{
		device:     device,
		stream:     stream,
		transients: transients,
		flags:      flags,
		maxCached:  maxCached,
		validate:   validate,
	}
}

// RequestRefit lets the next build of a stale entry refit in place.
func (b *TopLevelBuilder) RequestRefit() {
	b.refitRequested = true
}

// Invalidate marks every cached structure out of date.
func (b *TopLevelBuilder) Invalidate() {
	for _, e := range b.entries {
		e.stale = true
	}
}

func (b *TopLevelBuilder) LastBuildPath() BuildPath {
	return b.lastPath
}

// GeometryCount is the number of geometries the current structure holds.
func (b *TopLevelBuilder) GeometryCount() uint32 {
	if b.current == nil {
		return 0
	}
	return b.current.geometryCount
}

func (b *TopLevelBuilder) InstanceCount() uint32 {
	if b.current == nil {
		return 0
	}
	return b.current.instanceCount
}

func (b *TopLevelBuilder) Current() *metadata.AccelerationStructure {
	if b.current == nil {
		return nil
	}
	return b.current.tlas
}

// Instances returns the descriptors of the last build or refit.
func (b *TopLevelBuilder) Instances() []metadata.InstanceDesc {
	return b.lastInstances
}

func (b *TopLevelBuilder) CachedCount() int {
	return len(b.entries)
}

func (b *TopLevelBuilder) find(h uint32) *tlasEntry {
	for _, e := range b.entries {
		if e.hitProgramCount == h {
			return e
		}
	}
	return nil
}

func (b *TopLevelBuilder) touch(e *tlasEntry) {
	b.useCounter++
	e.lastUse = b.useCounter
	b.current = e
}

func (b *TopLevelBuilder) retire(e *tlasEntry) {
	if e.tlas != nil {
		b.transients.RetireAccelerationStructure(e.tlas, b.stream.NextFenceValue())
		e.tlas = nil
	}
}

/**
 * @brief Returns the top level structure for hit program count h,
 * building, refitting or reusing a cached one. A nil structure with a
 * nil error means there is nothing to trace against.
 */
func (b *TopLevelBuilder) Build(src TopLevelSource, h uint32) (*metadata.AccelerationStructure, error) {
	if h == 0 || src.ModelCount() == 0 {
		b.Release()
		b.lastPath = BuildPathReleased
		return nil, nil
	}

	topology := src.TopologyGeneration()
	entry := b.find(h)
	if entry != nil && !entry.stale && entry.topology == topology {
		b.touch(entry)
		b.lastPath = BuildPathCached
		core.MetricsAdd(core.MetricTopLevelCacheHit, 1)
		return entry.tlas, nil
	}

	descs, geometries := b.instanceDescs(src, h)
	count := uint32(len(descs))
	b.lastInstances = descs

	data := make([]byte, len(descs)*metadata.InstanceDescSize)
	for i, d := range descs {
		d.Encode(data[i*metadata.InstanceDescSize:])
	}
	instances, err := b.transients.Allocate("tlas.instances", uint64(len(data)), metadata.BufferUsageAccelerationStructureInput|metadata.BufferUsageUpload)
	if err != nil {
		return nil, err
	}
	defer b.transients.RetireBuffer(instances, b.stream.NextFenceValue())
	if err := b.device.WriteBuffer(instances, 0, data); err != nil {
		return nil, fmt.Errorf("%w: uploading instance descriptors: %v", core.ErrDeviceFailure, err)
	}

	inputs := metadata.AccelerationStructureInputs{
		Type:          metadata.AccelerationStructureTopLevel,
		Flags:         b.flags,
		Instances:     instances,
		InstanceCount: count,
	}

	refit := entry != nil && b.refitRequested &&
		entry.tlas.Flags.Has(metadata.BuildFlagAllowUpdate) &&
		entry.instanceCount == count &&
		entry.topology == topology
	if refit {
		err = b.refit(entry, &inputs)
	} else {
		if entry == nil {
			entry = &tlasEntry{hitProgramCount: h}
			b.entries = append(b.entries, entry)
		}
		err = b.rebuild(entry, &inputs)
	}
	if err != nil {
		return nil, err
	}

	entry.instanceCount = count
	entry.geometryCount = geometries
	entry.topology = topology
	entry.stale = false
	b.refitRequested = false
	b.touch(entry)
	b.evict()
	return entry.tlas, nil
}

func (b *TopLevelBuilder) refit(entry *tlasEntry, inputs *metadata.AccelerationStructureInputs) error {
	inputs.Flags |= metadata.BuildFlagPerformUpdate
	info := b.device.GetAccelerationStructurePrebuildInfo(inputs)
	if err := b.submit(inputs, entry.tlas, entry.tlas, info.UpdateScratchSize); err != nil {
		return err
	}
	b.lastPath = BuildPathRefit
	core.MetricsAdd(core.MetricTopLevelRefit, 1)
	return nil
}

func (b *TopLevelBuilder) rebuild(entry *tlasEntry, inputs *metadata.AccelerationStructureInputs) error {
	b.retire(entry)
	info := b.device.GetAccelerationStructurePrebuildInfo(inputs)
	tlas, err := b.device.CreateAccelerationStructure(metadata.AccelerationStructureTopLevel, info.ResultDataMaxSize, inputs.Flags)
	if err != nil {
		b.drop(entry)
		return fmt.Errorf("%w: creating top level structure: %v", core.ErrDeviceFailure, err)
	}
	entry.tlas = tlas
	if err := b.submit(inputs, tlas, nil, info.ScratchDataSize); err != nil {
		b.drop(entry)
		return err
	}
	b.lastPath = BuildPathRebuild
	core.MetricsAdd(core.MetricTopLevelRebuild, 1)
	return nil
}

func (b *TopLevelBuilder) submit(inputs *metadata.AccelerationStructureInputs, dst, src *metadata.AccelerationStructure, scratchSize uint64) error {
	scratch, err := b.transients.Allocate("tlas.scratch", scratchSize, metadata.BufferUsageScratch|metadata.BufferUsageStorage)
	if err != nil {
		return err
	}
	err = b.stream.BuildAccelerationStructure(inputs, dst, src, scratch)
	b.transients.RetireBuffer(scratch, b.stream.NextFenceValue())
	if err != nil {
		return fmt.Errorf("%w: building top level structure: %v", core.ErrDeviceFailure, err)
	}
	b.stream.AccelerationStructureBarrier(dst)
	return nil
}

// drop removes a failed entry so the next request rebuilds from scratch.
func (b *TopLevelBuilder) drop(entry *tlasEntry) {
	b.retire(entry)
	b.entries = slices.DeleteFunc(b.entries, func(e *tlasEntry) bool { return e == entry })
	if b.current == entry {
		b.current = nil
	}
}

func (b *TopLevelBuilder) evict() {
	for len(b.entries) > b.maxCached {
		oldest := -1
		for i, e := range b.entries {
			if e == b.current {
				continue
			}
			if oldest < 0 || e.lastUse < b.entries[oldest].lastUse {
				oldest = i
			}
		}
		if oldest < 0 {
			return
		}
		core.LogDebug("evicting top level structure for %d hit programs", b.entries[oldest].hitProgramCount)
		b.retire(b.entries[oldest])
		b.entries = slices.Delete(b.entries, oldest, oldest+1)
	}
}

/**
 * @brief Walks every mesh group instance of every model instance. The
 * custom index of an instance is the dense id of its first geometry
 * and its hit group offset that id times h.
 */
func (b *TopLevelBuilder) instanceDescs(src TopLevelSource, h uint32) ([]metadata.InstanceDesc, uint32) {
	var ix *InstanceIndexer
	if b.validate {
		ix = src.Indexer()
		if err := ix.Validate(); err != nil {
			panic(err)
		}
	}

	var descs []metadata.InstanceDesc
	running := uint32(0)
	for m := 0; m < src.ModelCount(); m++ {
		rt := src.RtModel(m)
		for mi := 0; mi < src.ModelInstanceCount(m); mi++ {
			world := src.ModelInstanceWorld(m, mi)
			for _, g := range rt.Groups() {
				for gi := 0; gi < rt.GroupInstanceCount(g); gi++ {
					if ix != nil {
						key := InstanceKey{Model: m, ModelInstance: mi, Mesh: g.FirstMesh(), MeshInstance: gi}
						if id := ix.InstanceID(key); id != running {
							panic(fmt.Sprintf("top level instance %s has id %d, enumeration reached %d", key, id, running))
						}
					}

					xf := world
					if g.IsStatic {
						xf = rt.GroupTransform(g, gi).Mul(world)
					}
					var flags metadata.InstanceFlags
					if rt.GroupDoubleSided(g) {
						flags |= metadata.InstanceFlagTriangleCullDisable
					}
					descs = append(descs, metadata.InstanceDesc{
						Transform:             xf.RowMajor3x4(),
						InstanceID:            running,
						Mask:                  metadata.InstanceMaskAll,
						HitGroupOffset:        running * h,
						Flags:                 flags,
						AccelerationStructure: g.Blas.Handle,
					})
					running += uint32(g.GeometryCount())
				}
			}
		}
	}
	return descs, running
}

// Release retires every cached structure.
func (b *TopLevelBuilder) Release() {
	for _, e := range b.entries {
		b.retire(e)
	}
	b.entries = nil
	b.current = nil
}
