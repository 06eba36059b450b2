package software

import (
	"time"

	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
)

const minLeafItems = 2

// bvhItem is a bounded primitive: a triangle in a bottom level
// structure, an instance in a top level one.
type bvhItem struct {
	bounds   math.Extents3D
	centroid math.Vec3
	index    int
}

// bvhNode is an interior node when count is zero, a leaf otherwise.
// Leaves reference items[first:first+count].
type bvhNode struct {
	bounds math.Extents3D
	left   int32
	right  int32
	first  int32
	count  int32
}

func (n *bvhNode) isLeaf() bool {
	return n.count > 0
}

type bvhStats struct {
	nodes    int
	leafs    int
	maxDepth int
}

// bvh is a flat median split hierarchy. Nodes are stored parent first so
// a reverse walk visits children before their parents.
type bvh struct {
	nodes []bvhNode
	items []bvhItem
	stats bvhStats
}

func buildBvh(items []bvhItem) *bvh {
	b := &bvh{
		items: items,
		nodes: make([]bvhNode, 0, 2*len(items)+1),
	}
	start := time.Now()
	if len(items) == 0 {
		b.nodes = append(b.nodes, bvhNode{bounds: math.NewExtentsEmpty()})
		return b
	}
	b.partition(0, len(items), 0)
	core.LogDebug("BVH build time: %d us, items: %d, maxDepth: %d, nodes: %d, leafs: %d",
		time.Since(start).Microseconds(), len(items), b.stats.maxDepth, b.stats.nodes, b.stats.leafs)
	return b
}

// partition builds the node for items[first:last] and returns its index.
func (b *bvh) partition(first, last, depth int) int32 {
	if depth > b.stats.maxDepth {
		b.stats.maxDepth = depth
	}

	bounds := math.NewExtentsEmpty()
	centroids := math.NewExtentsEmpty()
	for _, it := range b.items[first:last] {
		bounds = bounds.Union(it.bounds)
		centroids = centroids.Grow(it.centroid)
	}

	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, bvhNode{bounds: bounds})
	b.stats.nodes++

	if last-first <= minLeafItems {
		b.nodes[idx].first = int32(first)
		b.nodes[idx].count = int32(last - first)
		b.stats.leafs++
		return idx
	}

	axis := centroids.LongestAxis()
	work := b.items[first:last]
	slices.SortStableFunc(work, func(a, c bvhItem) int {
		ca, cc := a.centroid.Axis(axis), c.centroid.Axis(axis)
		switch {
		case ca < cc:
			return -1
		case ca > cc:
			return 1
		}
		return a.index - c.index
	})

	mid := first + (last-first)/2
	left := b.partition(first, mid, depth+1)
	right := b.partition(mid, last, depth+1)
	b.nodes[idx].left = left
	b.nodes[idx].right = right
	return idx
}

// refit recomputes every node's bounds after the item bounds changed.
// The topology is kept.
func (b *bvh) refit(boundsOf func(index int) math.Extents3D) {
	for i := range b.items {
		b.items[i].bounds = boundsOf(b.items[i].index)
		b.items[i].centroid = b.items[i].bounds.Center()
	}
	for i := len(b.nodes) - 1; i >= 0; i-- {
		n := &b.nodes[i]
		if n.isLeaf() {
			bounds := math.NewExtentsEmpty()
			for _, it := range b.items[n.first : n.first+n.count] {
				bounds = bounds.Union(it.bounds)
			}
			n.bounds = bounds
			continue
		}
		if n.count == 0 && n.left == 0 && n.right == 0 {
			continue
		}
		n.bounds = b.nodes[n.left].bounds.Union(b.nodes[n.right].bounds)
	}
}

func (b *bvh) rootBounds() math.Extents3D {
	if len(b.nodes) == 0 {
		return math.NewExtentsEmpty()
	}
	return b.nodes[0].bounds
}

// traverse visits the items of every leaf whose bounds the ray enters
// before tMax. visit returns the new closest distance.
func (b *bvh) traverse(r ray, tMax float32, visit func(item bvhItem, tMax float32) float32) float32 {
	if len(b.items) == 0 {
		return tMax
	}
	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &b.nodes[i]
		if !r.hitsBox(n.bounds, tMax) {
			continue
		}
		if n.isLeaf() {
			for _, it := range b.items[n.first : n.first+n.count] {
				tMax = visit(it, tMax)
			}
			continue
		}
		stack = append(stack, n.left, n.right)
	}
	return tMax
}
