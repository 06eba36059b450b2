/*
Headless driver for the ray tracing core: renders the testbed scene on
the software device for a number of frames and logs the metrics.
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/spaghettifunk/anima-rt/engine"
	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
	"github.com/spaghettifunk/anima-rt/testbed"
)

func main() {
	app := cli.NewApp()
	app.Name = "anima-rt"
	app.Usage = "build acceleration structures and shader tables for a synthetic scene"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render the testbed scene headless",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Usage: "renderer config file (.toml, .yaml)",
				},
				cli.Uint64Flag{
					Name:  "frames, n",
					Value: 300,
					Usage: "frames to render, 0 renders until interrupted",
				},
				cli.BoolFlag{
					Name:  "watch, w",
					Usage: "reload the config file when it changes",
				},
			},
			Action: render,
		},
		{
			Name:      "config",
			Usage:     "write the default config",
			ArgsUsage: "anima.toml",
			Action:    writeDefaultConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}

func render(ctx *cli.Context) error {
	configPath := ctx.String("config")
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	core.LogConfigure(cfg.Logging.Level, cfg.Logging.Prefix)

	tb := testbed.NewTestGame(cfg, ctx.Uint64("frames"))
	device := software.NewDevice(software.Options{Name: "software", FenceLatency: 2, CommandHistory: 1024})

	engine, err := engine.New(tb.Game, device)
	if err != nil {
		return err
	}

	if err := engine.Initialize(); err != nil {
		return err
	}

	if ctx.Bool("watch") && configPath != "" {
		watcher, err := config.Watch(configPath, engine.Reload)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		_ = engine.Shutdown()
	}()

	// run engine
	return engine.Run()
}

func writeDefaultConfig(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		path = "anima.toml"
	}
	if err := config.Save(config.Default(), path); err != nil {
		return err
	}
	core.LogInfo("default config written to %s", path)
	return nil
}
