//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// shaderStages lists the ray tracing stages glslc compiles.
var shaderStages = []string{"*.rgen", "*.rmiss", "*.rchit", "*.rahit"}

// Compiles every ray tracing shader to SPIR-V. Closest hit shaders get
// one binary per binding model.
func (Build) Shaders() error {
	for _, pattern := range shaderStages {
		sources, err := filepath.Glob(filepath.Join("shaders", pattern))
		if err != nil {
			return err
		}
		for _, src := range sources {
			if err := compileShader(src); err != nil {
				return err
			}
		}
	}
	return nil
}

func compileShader(src string) error {
	base := strings.TrimSuffix(src, filepath.Ext(src))
	stage := strings.TrimPrefix(filepath.Ext(src), ".")
	args := []string{"--target-env=vulkan1.2", "-I", "shaders"}
	if stage != "rchit" {
		_, err := executeCmd("glslc", withArgs(append(args, src, "-o", fmt.Sprintf("%s.%s.spv", base, stage))...), withStream())
		return err
	}
	if _, err := executeCmd("glslc", withArgs(append(args, src, "-o", base+".rchit.tables.spv")...), withStream()); err != nil {
		return err
	}
	_, err := executeCmd("glslc", withArgs(append(args, "-DEMBEDDED_BINDING", src, "-o", base+".rchit.embedded.spv")...), withStream())
	return err
}

// Tidies the module and builds the headless driver.
func (Build) Engine() error {
	if err := goModTidy(); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/anima-rt", "."), withStream())
	return err
}

// Runs the unit tests with the race detector.
func (Build) Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream())
	return err
}
