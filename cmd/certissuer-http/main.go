// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// certissuer-http is the HTTP/JSON façade process: it owns a connection
// pool to a certissuerd engine and serves the grant endpoint over plain
// net/http. Wiring mirrors cmd/certissuerd/main.go's flag-parse, configure,
// log, serve, signal-wait shape.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"github.com/bitmark-inc/logger"

	"github.com/stockvault/certissuer/config"
	"github.com/stockvault/certissuer/connpool"
	"github.com/stockvault/certissuer/httpadapter"
)

var version = "zero"

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

	pool := connpool.New(connpool.Options{
		Addr:         cfg.Listen,
		Max:          int(cfg.MaxConns),
		DialTimeout:  5 * time.Second,
		CheckoutWait: time.Second,
	})
	defer pool.Close()

	handler := httpadapter.New(pool, cfg.CompanyName, logger.New("httpadapter"))

	server := &http.Server{
		Addr:    cfg.HTTPListen,
		Handler: handler.Mux(),
	}

	go func() {
		log.Infof("listening on %s", cfg.HTTPListen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Criticalf("http server failed: %s", err)
			exitwithstatus.Message("%s: http server failed: %s", program, err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received signal: %v", sig)

	server.Close()
}
