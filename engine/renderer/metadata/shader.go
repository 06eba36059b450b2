package metadata

import "fmt"

/** @brief Ray tracing shader stages. */
type ShaderStage int

const (
	ShaderStageRayGen       ShaderStage = 0x00000001
	ShaderStageMiss         ShaderStage = 0x00000002
	ShaderStageClosestHit   ShaderStage = 0x00000004
	ShaderStageAnyHit       ShaderStage = 0x00000008
	ShaderStageIntersection ShaderStage = 0x00000010
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageRayGen:
		return "raygen"
	case ShaderStageMiss:
		return "miss"
	case ShaderStageClosestHit:
		return "closesthit"
	case ShaderStageAnyHit:
		return "anyhit"
	case ShaderStageIntersection:
		return "intersection"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

/** @brief The kind of object a reflected resource slot accepts. */
type ShaderResourceType int

const (
	ShaderResourceSrv ShaderResourceType = iota
	ShaderResourceUav
	ShaderResourceSampler
	ShaderResourceAccelerationStructure
	ShaderResourceConstantBuffer
	ShaderResourceParameterBlock
)

/**
 * @brief A resolved slot inside a parameter block. Locations are
 * resolved by name once and reused for every bind.
 */
type BindLocation struct {
	Set     uint32
	Binding uint32
}

var InvalidBindLocation = BindLocation{Set: InvalidID, Binding: InvalidID}

func (l BindLocation) IsValid() bool {
	return l != InvalidBindLocation
}

type ShaderResource struct {
	Name     string
	Type     ShaderResourceType
	Location BindLocation
	/** @brief 1 for scalar bindings. */
	ArraySize uint32
}

type ShaderConstant struct {
	Name   string
	Offset uint32
	Size   uint32
}

/**
 * @brief The reflected layout of one parameter block: named resource
 * slots plus a constant buffer. The id keys every memoized lookup.
 */
type ParameterBlockReflection struct {
	ID            uint32
	Name          string
	Resources     map[string]ShaderResource
	Constants     map[string]ShaderConstant
	ConstantsSize uint32
	/** @brief Nested blocks such as the material block. */
	Blocks map[string]*ParameterBlockReflection
}

func NewParameterBlockReflection(id uint32, name string) *ParameterBlockReflection {
	return &ParameterBlockReflection{
		ID:        id,
		Name:      name,
		Resources: make(map[string]ShaderResource),
		Constants: make(map[string]ShaderConstant),
		Blocks:    make(map[string]*ParameterBlockReflection),
	}
}

// AddResource appends a slot in the next free binding of set 0.
func (r *ParameterBlockReflection) AddResource(name string, t ShaderResourceType, arraySize uint32) BindLocation {
	if arraySize == 0 {
		arraySize = 1
	}
	loc := BindLocation{Set: 0, Binding: uint32(len(r.Resources) + len(r.Blocks))}
	r.Resources[name] = ShaderResource{Name: name, Type: t, Location: loc, ArraySize: arraySize}
	return loc
}

// AddConstant appends a constant honoring the 16 byte packing rule.
func (r *ParameterBlockReflection) AddConstant(name string, size uint32) ShaderConstant {
	offset := r.ConstantsSize
	if offset/16 != (offset+size-1)/16 {
		offset = uint32(GetAligned(uint64(offset), 16))
	}
	c := ShaderConstant{Name: name, Offset: offset, Size: size}
	r.Constants[name] = c
	r.ConstantsSize = offset + size
	return c
}

func (r *ParameterBlockReflection) AddBlock(block *ParameterBlockReflection) BindLocation {
	loc := BindLocation{Set: 0, Binding: uint32(len(r.Resources) + len(r.Blocks))}
	r.Blocks[block.Name] = block
	r.Resources[block.Name] = ShaderResource{Name: block.Name, Type: ShaderResourceParameterBlock, Location: loc, ArraySize: 1}
	return loc
}

func (r *ParameterBlockReflection) GetResourceBinding(name string) BindLocation {
	if r == nil {
		return InvalidBindLocation
	}
	if res, ok := r.Resources[name]; ok {
		return res.Location
	}
	return InvalidBindLocation
}

func (r *ParameterBlockReflection) GetResource(name string) (ShaderResource, bool) {
	if r == nil {
		return ShaderResource{}, false
	}
	res, ok := r.Resources[name]
	return res, ok
}

// ResourceAt returns the slot declared at loc.
func (r *ParameterBlockReflection) ResourceAt(loc BindLocation) (ShaderResource, bool) {
	if r == nil {
		return ShaderResource{}, false
	}
	for _, res := range r.Resources {
		if res.Location == loc {
			return res, true
		}
	}
	return ShaderResource{}, false
}

func (r *ParameterBlockReflection) GetConstant(name string) (ShaderConstant, bool) {
	if r == nil {
		return ShaderConstant{}, false
	}
	c, ok := r.Constants[name]
	return c, ok
}

func (r *ParameterBlockReflection) GetBlock(name string) *ParameterBlockReflection {
	if r == nil {
		return nil
	}
	return r.Blocks[name]
}

/**
 * @brief Reflection of one ray tracing program version: the global
 * block shared by every stage and one local block per entry point.
 */
type ProgramReflection struct {
	ID     uint32
	Name   string
	Global *ParameterBlockReflection
	/** @brief Local root signature / record layout, keyed by entry point. */
	Locals map[string]*ParameterBlockReflection
}

func NewProgramReflection(id uint32, name string, global *ParameterBlockReflection) *ProgramReflection {
	return &ProgramReflection{
		ID:     id,
		Name:   name,
		Global: global,
		Locals: make(map[string]*ParameterBlockReflection),
	}
}

func (p *ProgramReflection) Local(entryPoint string) *ParameterBlockReflection {
	if p == nil {
		return nil
	}
	return p.Locals[entryPoint]
}
