/*
This is an example application that runs the texture subsystem testbed.
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/PandaBlessing/cocos2d-x/testbed"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	game, err := testbed.NewTestGame(*configPath)
	if err != nil {
		panic(err)
	}

	if err := game.Boot(); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		cancel()
	}()

	if err := game.Run(ctx); err != nil {
		panic(err)
	}

	if err := game.Shutdown(); err != nil {
		panic(err)
	}
}
