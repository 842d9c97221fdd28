// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	v1 "github.com/decred/dcrcommit/api/v1"
	"github.com/decred/dcrcommit/util"
	"github.com/decred/dcrd/dcrutil/v4"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "dcrcommit.conf"

	defaultMainnetDcrdata = "https://dcrdata.decred.org/api/tx/"
	defaultTestnetDcrdata = "https://testnet.dcrdata.org/api/tx/"
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("dcrcommit", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
)

// config defines the configuration options for dcrcommit.  Command line flags
// override the values read from the configuration file.
//
// See loadConfig for details on the configuration load process.
type config struct {
	Host       string `long:"host" description:"Commitment server host"`
	TestNet    bool   `long:"testnet" description:"Use the testnet port"`
	SkipVerify bool   `long:"skipverify" description:"Do not verify the server TLS certificate"`
	Dcrdata    string `long:"dcrdata" description:"dcrdata transaction API used by checktx"`
}

// loadConfig reads the configuration file.  A missing file is not an error.
func loadConfig(filename string) (*config, error) {
	cfg := config{}

	err := flags.IniParse(filename, &cfg)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			return nil, err
		}
	}

	err = initHomeDirectory(filepath.Dir(filename))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// serverURL returns the normalized https url of the server.
func (c *config) serverURL() (string, error) {
	host := strings.TrimPrefix(c.Host, "https://")
	port := v1.DefaultMainnetPort
	if c.TestNet {
		port = v1.DefaultTestnetPort
	}
	if host == "" {
		if c.TestNet {
			host = v1.DefaultTestnetHost
		} else {
			host = v1.DefaultMainnetHost
		}
	}

	u, err := url.Parse("https://" + util.NormalizeAddress(host, port))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// dcrdataURL returns the dcrdata transaction API prefix.
func (c *config) dcrdataURL() string {
	switch {
	case c.Dcrdata != "":
		return c.Dcrdata
	case c.TestNet:
		return defaultTestnetDcrdata
	}
	return defaultMainnetDcrdata
}

// initHomeDirectory creates the home directory if it doesn't already exist.
func initHomeDirectory(homeDir string) error {
	funcName := "initHomeDirectory"
	err := os.MkdirAll(homeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		var e *os.PathError
		if errors.As(err, &e) && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		return fmt.Errorf("%s: Failed to create home directory: %v",
			funcName, err)
	}

	return nil
}
