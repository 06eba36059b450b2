package core

import (
	"fmt"
	"sync"
)

// Identifiers are small integer handles used to key memoized reflection
// lookups and transient device objects. Released ids are reused.
var (
	identifierMu sync.Mutex
	owners       []interface{}
)

func IdentifierAquireNewID(owner interface{}) uint32 {
	identifierMu.Lock()
	defer identifierMu.Unlock()

	if len(owners) == 0 {
		owners = make([]interface{}, 0, 128)
	}
	for i := range owners {
		if owners[i] == nil {
			owners[i] = owner
			return uint32(i)
		}
	}
	owners = append(owners, owner)
	return uint32(len(owners) - 1)
}

func IdentifierReleaseID(id uint32) error {
	identifierMu.Lock()
	defer identifierMu.Unlock()

	if len(owners) == 0 {
		return fmt.Errorf("identifier %d released before any id was acquired", id)
	}
	if int(id) >= len(owners) {
		return fmt.Errorf("identifier %d out of range (max=%d)", id, len(owners)-1)
	}
	owners[id] = nil
	return nil
}

// IdentifierOwner returns the object that acquired id, or nil.
func IdentifierOwner(id uint32) interface{} {
	identifierMu.Lock()
	defer identifierMu.Unlock()
	if int(id) >= len(owners) {
		return nil
	}
	return owners[id]
}
