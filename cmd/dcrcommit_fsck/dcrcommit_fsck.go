// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/dcrcommit/dcrcommitd/backend"
	"github.com/decred/dcrcommit/dcrcommitd/backend/filesystem"
	"github.com/decred/dcrcommit/dcrcommitd/backend/postgres"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
	flags "github.com/jessevdk/go-flags"
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("dcrcommitd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, "dcrcommitd.conf")

	configFile  = flag.String("C", defaultConfigFile, "dcrcommitd configuration file")
	file        = flag.String("file", "", "journal of modifications if used (will be written despite -fix)")
	fix         = flag.Bool("fix", false, "Try to correct correctable failures")
	printHashes = flag.Bool("printhashes", false, "Print all hashes")
	fsRoot      = flag.String("source", "", "Source directory")
	testnet     = flag.Bool("testnet", false, "Use testnet database")
	verbose     = flag.Bool("v", false, "Print more information during run")
)

// config defines the dcrcommitd options used by dcrcommit_fsck.
type config struct {
	TestNet          bool   `long:"testnet"`
	Backend          string `long:"backend"`
	PostgresHost     string `long:"postgreshost"`
	PostgresRootCert string `long:"postgresrootcert"`
	PostgresCert     string `long:"postgrescert"`
	PostgresKey      string `long:"postgreskey"`
}

// loadConfig initializes and parses the config using a config file.  A
// missing file selects the filesystem backend.
func loadConfig(filename string) (*config, error) {
	cfg := config{
		Backend: "filesystem",
	}
	parser := flags.NewParser(&cfg, flags.IgnoreUnknown)
	err := flags.NewIniParser(parser).ParseFile(filename)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			return nil, err
		}
	}
	return &cfg, nil
}

func _main() error {
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("Could not load configuration file: %v", err)
	}
	net := chaincfg.MainNetParams().Name
	if *testnet || cfg.TestNet {
		net = chaincfg.TestNet3Params().Name
	}

	var b backend.Backend
	switch cfg.Backend {
	case "filesystem":
		root := *fsRoot
		if root == "" {
			root = filepath.Join(defaultHomeDir, "data", net)
		}
		fmt.Printf("=== Root: %v\n", root)
		b, err = filesystem.NewDump(root)
	case "postgres":
		fmt.Printf("=== Database: %v\n", net)
		b, err = postgres.NewDump(cfg.PostgresHost, net,
			cfg.PostgresRootCert, cfg.PostgresCert, cfg.PostgresKey)
	default:
		err = fmt.Errorf("Unsupported backend type: %v", cfg.Backend)
	}
	if err != nil {
		return err
	}
	defer b.Close()

	return b.Fsck(&backend.FsckOptions{
		Verbose:     *verbose,
		PrintHashes: *printHashes,
		Fix:         *fix,
		File:        *file,
	})
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
