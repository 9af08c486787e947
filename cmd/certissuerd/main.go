// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// certissuerd is the issuance engine daemon: it recovers state from the
// journal, binds the wire listener, and serves grant requests until it
// receives SIGINT or SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"github.com/bitmark-inc/logger"

	"github.com/stockvault/certissuer/background"
	"github.com/stockvault/certissuer/config"
	"github.com/stockvault/certissuer/engine"
)

var version = "zero" // set by the linker: go build -ldflags "-X main.version=M.N" ./...

func main() {
	defer exitwithstatus.Handler()

	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "version", HasArg: getoptions.NO_ARGUMENT, Short: 'V'},
		{Long: "config-file", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'c'},
	}

	program, options, _, err := getoptions.GetOS(flags)
	if err != nil {
		exitwithstatus.Message("%s: getoptions error: %s", program, err)
	}

	if len(options["version"]) > 0 {
		fmt.Printf("%s: %s\n", program, version)
		return
	}

	if len(options["help"]) > 0 || len(options["config-file"]) != 1 {
		fmt.Printf("usage: %s --config-file=FILE\n", program)
		return
	}

	cfg, err := config.Load(options["config-file"][0])
	if err != nil {
		exitwithstatus.Message("%s: failed to read configuration: %s", program, err)
	}

	if err := logger.Initialise(cfg.Logging); err != nil {
		exitwithstatus.Message("%s: logger setup failed: %s", program, err)
	}
	defer logger.Finalise()

	log := logger.New("main")
	defer log.Info("finished")
	log.Info("starting…")
	log.Infof("version: %s", version)

	e, err := engine.Recover(cfg.AuthorizedMap(), cfg.JournalFile, logger.New("engine"))
	if err != nil {
		log.Criticalf("recovery failed: %s", err)
		exitwithstatus.Message("%s: recovery failed: %s", program, err)
	}
	log.Info("journal recovery complete")

	ls, err := engine.NewListener(cfg.Listen, e, cfg.MaxConns, logger.New("listener"))
	if err != nil {
		log.Criticalf("listener bind failed: %s", err)
		exitwithstatus.Message("%s: listener bind failed: %s", program, err)
	}
	log.Infof("listening on %s", ls.Addr())

	watcher, err := config.WatchForChanges(options["config-file"][0], logger.New("config"))
	if err != nil {
		log.Warnf("configuration watch not started: %s", err)
	} else {
		defer watcher.Close()
	}

	running := background.Start(background.Processes{ls.Background}, nil)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received signal: %v", sig)

	background.Stop(running) // waits for the accept loop to fully drain
	if err := e.Close(); err != nil {
		log.Errorf("journal close failed: %s", err)
	}
}
