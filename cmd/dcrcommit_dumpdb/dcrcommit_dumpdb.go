// Copyright (c) 2017-2024 The Decred developers
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
	destination = flag.String("destination", "", "Restore destination")
	dumpJSON    = flag.Bool("json", false, "Dump JSON")
	restore     = flag.Bool("restore", false, "Restore backend, -destination is required")
	fsRoot      = flag.String("source", "", "Source directory")
	testnet     = flag.Bool("testnet", false, "Use testnet database")
)

// config holds the dcrcommitd options relevant for dumping.  Unknown options
// in the daemon configuration file are ignored.
type config struct {
	TestNet          bool   `long:"testnet"`
	Backend          string `long:"backend"`
	PostgresHost     string `long:"postgreshost"`
	PostgresRootCert string `long:"postgresrootcert"`
	PostgresCert     string `long:"postgrescert"`
	PostgresKey      string `long:"postgreskey"`
}

// loadConfig reads the daemon configuration file.  A missing file selects the
// filesystem backend.
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

// netName mirrors the per network directory and database naming of
// dcrcommitd.
func netName(testnet bool) string {
	if testnet {
		return "testnet3"
	}
	return chaincfg.MainNetParams().Name
}

func _main() error {
	flag.Parse()

	loadedCfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("Could not load configuration file: %v", err)
	}
	net := netName(*testnet || loadedCfg.TestNet)

	root := *fsRoot
	if root == "" {
		root = filepath.Join(defaultHomeDir, "data", net)
	}

	var b backend.Backend
	switch loadedCfg.Backend {
	case "filesystem":
		if *restore {
			if *destination == "" {
				return fmt.Errorf("-destination must be set")
			}
			b, err = filesystem.NewRestore(*destination)
			break
		}
		b, err = filesystem.NewDump(root)
		if !*dumpJSON {
			fmt.Printf("=== Root: %v\n", root)
		}
	case "postgres":
		b, err = postgres.NewDump(loadedCfg.PostgresHost, net,
			loadedCfg.PostgresRootCert, loadedCfg.PostgresCert,
			loadedCfg.PostgresKey)
	default:
		err = fmt.Errorf("Unsupported backend type: %v",
			loadedCfg.Backend)
	}
	if err != nil {
		return err
	}
	defer b.Close()

	if *restore {
		return b.Restore(os.Stdin, true, *destination)
	}
	return b.Dump(os.Stdout, !*dumpJSON)
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
