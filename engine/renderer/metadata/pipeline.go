package metadata

type ShaderGroupType int

const (
	ShaderGroupGeneral ShaderGroupType = iota
	ShaderGroupTrianglesHit
	ShaderGroupProceduralHit
)

/**
 * @brief A shader group of a ray tracing state object. Raygen and miss
 * groups are general groups with one entry point, hit groups combine
 * closest hit, any hit and intersection entry points.
 */
type ShaderGroup struct {
	Name        string
	Type        ShaderGroupType
	EntryPoints map[ShaderStage]string
}

/**
 * @brief A compiled ray tracing pipeline. The program list holds the
 * group names in group index order and Identifiers the opaque handles
 * the device returned for them.
 */
type StateObject struct {
	ID                     uint32
	Groups                 []ShaderGroup
	Identifiers            [][]byte
	MaxTraceRecursionDepth uint32
	InternalData           interface{}
}

// GroupIndex returns the index of the named group in the program list.
func (s *StateObject) GroupIndex(name string) (uint32, bool) {
	if s == nil {
		return InvalidID, false
	}
	for i, g := range s.Groups {
		if g.Name == name {
			return uint32(i), true
		}
	}
	return InvalidID, false
}

func (s *StateObject) Identifier(group uint32) []byte {
	if s == nil || int(group) >= len(s.Identifiers) {
		return nil
	}
	return s.Identifiers[group]
}
