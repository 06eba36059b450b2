//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the headless testbed. ANIMA_CONFIG points at a config file and
// ANIMA_FRAMES overrides the frame count.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	args := []string{"run", ".", "render"}
	if path := os.Getenv("ANIMA_CONFIG"); path != "" {
		args = append(args, "-config", path, "-watch")
	}
	if frames := os.Getenv("ANIMA_FRAMES"); frames != "" {
		args = append(args, "-frames", frames)
	}
	_, err := executeCmd("go", withArgs(args...), withStream())
	return err
}
