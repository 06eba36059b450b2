package scene

import (
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

func NewMaterial(config metadata.MaterialConfig) *metadata.Material {
	m := metadata.NewMaterial(0, config)
	m.ID = core.IdentifierAquireNewID(m)
	return m
}
