package raytracing

import "fmt"

// SceneShape exposes the nested counts instance ids are derived from.
type SceneShape interface {
	ModelCount() int
	ModelInstanceCount(model int) int
	MeshCount(model int) int
	MeshInstanceCount(model, mesh int) int
}

// InstanceKey addresses one drawn geometry.
type InstanceKey struct {
	Model         int
	ModelInstance int
	Mesh          int
	MeshInstance  int
}

func (k InstanceKey) String() string {
	return fmt.Sprintf("(model %d, instance %d, mesh %d, mesh instance %d)", k.Model, k.ModelInstance, k.Mesh, k.MeshInstance)
}

/**
 * @brief InstanceIndexer maps every (model, model instance, mesh, mesh
 * instance) tuple to a dense id in model-major order. The top level
 * builder and the shader record binder both address geometry through
 * it, so hit group offsets and record slots agree.
 */
type InstanceIndexer struct {
	modelBase        []uint32
	perModelInstance []uint32
	meshBase         [][]uint32
	modelInstances   []int
	meshInstances    [][]int
	total            uint32
}

func NewInstanceIndexer(shape SceneShape) *InstanceIndexer {
	models := shape.ModelCount()
	ix := &InstanceIndexer{
		modelBase:        make([]uint32, models),
		perModelInstance: make([]uint32, models),
		meshBase:         make([][]uint32, models),
		modelInstances:   make([]int, models),
		meshInstances:    make([][]int, models),
	}

	running := uint32(0)
	for m := 0; m < models; m++ {
		meshes := shape.MeshCount(m)
		ix.meshBase[m] = make([]uint32, meshes)
		ix.meshInstances[m] = make([]int, meshes)

		perInstance := uint32(0)
		for mesh := 0; mesh < meshes; mesh++ {
			ix.meshBase[m][mesh] = perInstance
			count := shape.MeshInstanceCount(m, mesh)
			ix.meshInstances[m][mesh] = count
			perInstance += uint32(count)
		}

		ix.modelBase[m] = running
		ix.perModelInstance[m] = perInstance
		ix.modelInstances[m] = shape.ModelInstanceCount(m)
		running += perInstance * uint32(ix.modelInstances[m])
	}
	ix.total = running
	return ix
}

// Total is the number of enumerated geometries.
func (ix *InstanceIndexer) Total() uint32 {
	return ix.total
}

// InstanceID returns the dense id of k in O(1).
func (ix *InstanceIndexer) InstanceID(k InstanceKey) uint32 {
	return ix.modelBase[k.Model] +
		uint32(k.ModelInstance)*ix.perModelInstance[k.Model] +
		ix.meshBase[k.Model][k.Mesh] +
		uint32(k.MeshInstance)
}

// Enumerate visits every tuple in id order with its positional rank.
func (ix *InstanceIndexer) Enumerate(fn func(k InstanceKey, rank uint32)) {
	rank := uint32(0)
	for m := range ix.modelBase {
		for mi := 0; mi < ix.modelInstances[m]; mi++ {
			for mesh, count := range ix.meshInstances[m] {
				for gi := 0; gi < count; gi++ {
					fn(InstanceKey{Model: m, ModelInstance: mi, Mesh: mesh, MeshInstance: gi}, rank)
					rank++
				}
			}
		}
	}
}

// Validate checks that the direct query agrees with the positional rank
// for every tuple.
func (ix *InstanceIndexer) Validate() error {
	var err error
	visited := uint32(0)
	ix.Enumerate(func(k InstanceKey, rank uint32) {
		visited++
		if err != nil {
			return
		}
		if id := ix.InstanceID(k); id != rank {
			err = fmt.Errorf("instance id mismatch for %s: query %d, rank %d", k, id, rank)
		}
	})
	if err == nil && visited != ix.total {
		err = fmt.Errorf("enumerated %d instances, expected %d", visited, ix.total)
	}
	return err
}
