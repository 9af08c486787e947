// Copyright (c) 2025 certissuer authors.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config reads the HCL configuration file shared by certissuerd
// and certissuer-http: apply defaults, unmarshal, then validate and resolve
// paths relative to the configuration file's own directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl"

	"github.com/bitmark-inc/logger"
)

// ClassConfig is one authorized share class.
type ClassConfig struct {
	Tag        string `hcl:"tag"`
	Authorized int64  `hcl:"authorized"`
}

// Configuration is the on-disk shape of a certissuer config file. The
// engine daemon (certissuerd) and the HTTP adapter (certissuer-http) read
// the same file so the engine's class list and listen address stay in one
// place; certctl and certissuer-load take the engine address as a flag or
// argument instead.
type Configuration struct {
	JournalFile string        `hcl:"journal_file"`
	Listen      string        `hcl:"listen"`
	HTTPListen  string        `hcl:"http_listen"`
	CompanyName string        `hcl:"company_name"`
	MaxConns    uint64        `hcl:"maximum_connections"`
	Classes     []ClassConfig `hcl:"class"`
	Logging     logger.Configuration `hcl:"logging"`
}

const (
	defaultListen             = "127.0.0.1:9800"
	defaultHTTPListen         = "127.0.0.1:9880"
	defaultMaxConns           = 100
	defaultLogFile            = "certissuerd.log"
	defaultLogCount           = 10
	defaultLogSize            = 1024 * 1024
	defaultCompanyName        = "Impossible Cuts Inc."
)

// Load reads and validates fileName, resolving JournalFile and the
// logging directory relative to the configuration file's own directory
// when given as relative paths.
func Load(fileName string) (*Configuration, error) {
	absPath, err := filepath.Abs(filepath.Clean(fileName))
	if err != nil {
		return nil, err
	}
	baseDir := filepath.Dir(absPath)

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	cfg := &Configuration{
		Listen:      defaultListen,
		HTTPListen:  defaultHTTPListen,
		CompanyName: defaultCompanyName,
		MaxConns:    defaultMaxConns,
		Logging: logger.Configuration{
			Directory: baseDir,
			File:      defaultLogFile,
			Size:      defaultLogSize,
			Count:     defaultLogCount,
			Levels:    map[string]string{logger.DefaultTag: "info"},
		},
	}

	if err := hcl.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}

	if cfg.JournalFile == "" {
		return nil, errors.New("config: journal_file is required")
	}
	if !filepath.IsAbs(cfg.JournalFile) {
		cfg.JournalFile = filepath.Join(baseDir, cfg.JournalFile)
	}
	if !filepath.IsAbs(cfg.Logging.Directory) {
		cfg.Logging.Directory = filepath.Join(baseDir, cfg.Logging.Directory)
	}

	if len(cfg.Classes) == 0 {
		return nil, errors.New("config: at least one class is required")
	}
	seen := make(map[string]bool, len(cfg.Classes))
	for _, c := range cfg.Classes {
		if c.Tag == "" {
			return nil, errors.New("config: class tag must not be empty")
		}
		if c.Authorized < 0 {
			return nil, fmt.Errorf("config: class %q authorized must not be negative", c.Tag)
		}
		if seen[c.Tag] {
			return nil, fmt.Errorf("config: duplicate class tag %q", c.Tag)
		}
		seen[c.Tag] = true
	}

	return cfg, nil
}

// AuthorizedMap converts the configured class list into the
// map[string]uint64 shape engine.New and engine.Recover expect.
func (c *Configuration) AuthorizedMap() map[string]uint64 {
	m := make(map[string]uint64, len(c.Classes))
	for _, cls := range c.Classes {
		m[cls.Tag] = uint64(cls.Authorized)
	}
	return m
}
