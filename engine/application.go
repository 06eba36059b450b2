package engine

import (
	"github.com/spaghettifunk/anima-rt/engine/config"
)

type ApplicationConfig struct {
	// The application name, used for the program and the device.
	Name string
	// Frames to render before Run returns. Zero renders until Shutdown.
	Frames uint64
	// FixedDelta, when non zero, advances the scene clock by a constant
	// step per frame instead of wall time.
	FixedDelta float64
	// Renderer settings. Replaced on every hot reload.
	Config *config.Config
}

func (c *ApplicationConfig) settings() *config.Config {
	if c.Config == nil {
		c.Config = config.Default()
	}
	return c.Config
}
