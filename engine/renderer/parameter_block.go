package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

type slotKey struct {
	loc   metadata.BindLocation
	index uint32
}

/**
 * @brief Shader visible state for one parameter block reflection:
 * resource views, samplers, acceleration structures, constant buffers,
 * nested blocks and the raw constant bytes.
 */
type ParameterBlock struct {
	reflection *metadata.ParameterBlockReflection
	slots      map[metadata.BindLocation]metadata.ShaderResource

	views    map[slotKey]metadata.ResourceView
	samplers map[slotKey]*metadata.Sampler
	accels   map[slotKey]*metadata.AccelerationStructure
	cbuffers map[slotKey]*metadata.Buffer
	blocks   map[metadata.BindLocation]*ParameterBlock

	constants []byte
	dirty     bool
	table     *DescriptorTable
}

func NewParameterBlock(reflection *metadata.ParameterBlockReflection) *ParameterBlock {
	pb := &ParameterBlock{
		reflection: reflection,
		slots:      make(map[metadata.BindLocation]metadata.ShaderResource),
		views:      make(map[slotKey]metadata.ResourceView),
		samplers:   make(map[slotKey]*metadata.Sampler),
		accels:     make(map[slotKey]*metadata.AccelerationStructure),
		cbuffers:   make(map[slotKey]*metadata.Buffer),
		blocks:     make(map[metadata.BindLocation]*ParameterBlock),
		dirty:      true,
	}
	if reflection != nil {
		for _, res := range reflection.Resources {
			pb.slots[res.Location] = res
		}
		pb.constants = make([]byte, reflection.ConstantsSize)
		for name, child := range reflection.Blocks {
			pb.blocks[reflection.GetResourceBinding(name)] = NewParameterBlock(child)
		}
	}
	return pb
}

func (pb *ParameterBlock) Reflection() *metadata.ParameterBlockReflection {
	return pb.reflection
}

func (pb *ParameterBlock) checkSlot(loc metadata.BindLocation, arrayIndex uint32, kinds ...metadata.ShaderResourceType) error {
	res, ok := pb.slots[loc]
	if !ok || !loc.IsValid() {
		return fmt.Errorf("%w: %v in block %q", core.ErrInvalidBindLocation, loc, pb.name())
	}
	match := false
	for _, k := range kinds {
		if res.Type == k {
			match = true
			break
		}
	}
	if !match {
		return fmt.Errorf("%w: %q does not accept this resource type", core.ErrInvalidBindLocation, res.Name)
	}
	if arrayIndex >= res.ArraySize {
		return fmt.Errorf("%w: %q index %d, array size %d", core.ErrResourceArrayOverflow, res.Name, arrayIndex, res.ArraySize)
	}
	return nil
}

func (pb *ParameterBlock) name() string {
	if pb.reflection == nil {
		return ""
	}
	return pb.reflection.Name
}

func (pb *ParameterBlock) SetSrv(loc metadata.BindLocation, arrayIndex uint32, view metadata.ResourceView) error {
	if err := pb.checkSlot(loc, arrayIndex, metadata.ShaderResourceSrv); err != nil {
		return err
	}
	view.Type = metadata.ResourceViewSrv
	pb.views[slotKey{loc, arrayIndex}] = view
	pb.dirty = true
	return nil
}

func (pb *ParameterBlock) SetUav(loc metadata.BindLocation, arrayIndex uint32, view metadata.ResourceView) error {
	if err := pb.checkSlot(loc, arrayIndex, metadata.ShaderResourceUav); err != nil {
		return err
	}
	view.Type = metadata.ResourceViewUav
	pb.views[slotKey{loc, arrayIndex}] = view
	pb.dirty = true
	return nil
}

// GetSrv returns the view at the slot. Unset slots read as null views.
func (pb *ParameterBlock) GetSrv(loc metadata.BindLocation, arrayIndex uint32) metadata.ResourceView {
	return pb.views[slotKey{loc, arrayIndex}]
}

func (pb *ParameterBlock) GetUav(loc metadata.BindLocation, arrayIndex uint32) metadata.ResourceView {
	v := pb.views[slotKey{loc, arrayIndex}]
	v.Type = metadata.ResourceViewUav
	return v
}

func (pb *ParameterBlock) SetSampler(loc metadata.BindLocation, arrayIndex uint32, sampler *metadata.Sampler) error {
	if err := pb.checkSlot(loc, arrayIndex, metadata.ShaderResourceSampler); err != nil {
		return err
	}
	pb.samplers[slotKey{loc, arrayIndex}] = sampler
	pb.dirty = true
	return nil
}

func (pb *ParameterBlock) GetSampler(loc metadata.BindLocation, arrayIndex uint32) *metadata.Sampler {
	return pb.samplers[slotKey{loc, arrayIndex}]
}

func (pb *ParameterBlock) SetAccelerationStructure(loc metadata.BindLocation, arrayIndex uint32, as *metadata.AccelerationStructure) error {
	if err := pb.checkSlot(loc, arrayIndex, metadata.ShaderResourceAccelerationStructure); err != nil {
		return err
	}
	pb.accels[slotKey{loc, arrayIndex}] = as
	pb.dirty = true
	return nil
}

func (pb *ParameterBlock) GetAccelerationStructure(loc metadata.BindLocation, arrayIndex uint32) *metadata.AccelerationStructure {
	return pb.accels[slotKey{loc, arrayIndex}]
}

func (pb *ParameterBlock) SetConstantBuffer(loc metadata.BindLocation, arrayIndex uint32, buffer *metadata.Buffer) error {
	if err := pb.checkSlot(loc, arrayIndex, metadata.ShaderResourceConstantBuffer); err != nil {
		return err
	}
	pb.cbuffers[slotKey{loc, arrayIndex}] = buffer
	pb.dirty = true
	return nil
}

func (pb *ParameterBlock) GetConstantBuffer(loc metadata.BindLocation, arrayIndex uint32) *metadata.Buffer {
	return pb.cbuffers[slotKey{loc, arrayIndex}]
}

func (pb *ParameterBlock) SetParameterBlock(loc metadata.BindLocation, block *ParameterBlock) error {
	if err := pb.checkSlot(loc, 0, metadata.ShaderResourceParameterBlock); err != nil {
		return err
	}
	pb.blocks[loc] = block
	pb.dirty = true
	return nil
}

func (pb *ParameterBlock) GetParameterBlock(name string) *ParameterBlock {
	if pb.reflection == nil {
		return nil
	}
	return pb.blocks[pb.reflection.GetResourceBinding(name)]
}

// SetBlob copies raw bytes into the constant buffer at offset.
func (pb *ParameterBlock) SetBlob(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(pb.constants)) {
		return fmt.Errorf("%w: constant write [%d,%d) exceeds %d bytes in block %q",
			core.ErrInvalidBindLocation, offset, int(offset)+len(data), len(pb.constants), pb.name())
	}
	copy(pb.constants[offset:], data)
	pb.dirty = true
	return nil
}

// SetVariable writes data at the offset of the named constant.
func (pb *ParameterBlock) SetVariable(name string, data []byte) error {
	c, ok := pb.reflection.GetConstant(name)
	if !ok {
		return fmt.Errorf("%w: no constant %q in block %q", core.ErrInvalidBindLocation, name, pb.name())
	}
	if uint32(len(data)) > c.Size {
		data = data[:c.Size]
	}
	return pb.SetBlob(c.Offset, data)
}

func (pb *ParameterBlock) Constants() []byte {
	return pb.constants
}

func (pb *ParameterBlock) IsDirty() bool {
	return pb.dirty
}

// DescriptorCount is the number of table entries the block's resources need.
func (pb *ParameterBlock) DescriptorCount() uint32 {
	count := uint32(0)
	for _, res := range pb.slots {
		switch res.Type {
		case metadata.ShaderResourceParameterBlock, metadata.ShaderResourceAccelerationStructure:
			continue
		}
		count += res.ArraySize
	}
	return count
}

/**
 * @brief Allocates the descriptor table backing this block when its
 * contents changed since the last allocation.
 */
func (pb *ParameterBlock) PrepareDescriptorTable(pool *DescriptorPool) (DescriptorTable, error) {
	if pb.table != nil && !pb.dirty {
		return *pb.table, nil
	}
	t, err := pool.Allocate(pb.DescriptorCount())
	if err != nil {
		return DescriptorTable{}, err
	}
	pb.table = &t
	pb.dirty = false
	return t, nil
}

// InvalidateDescriptorTable drops the cached table after a pool reset.
func (pb *ParameterBlock) InvalidateDescriptorTable() {
	pb.table = nil
	pb.dirty = true
}

// PrepareForDraw validates nested blocks and clears the dirty state.
func (pb *ParameterBlock) PrepareForDraw() error {
	for _, child := range pb.blocks {
		if child == nil {
			continue
		}
		if err := child.PrepareForDraw(); err != nil {
			return err
		}
	}
	pb.dirty = false
	return nil
}
