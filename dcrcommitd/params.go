// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	v1 "github.com/decred/dcrcommit/api/v1"
	"github.com/decred/dcrd/chaincfg/v3"
)

// activeNetParams is a pointer to the parameters specific to the
// currently active decred network.
var activeNetParams = &mainNetParams

// params is used to group parameters for various networks such as the main
// network and test networks.
type params struct {
	*chaincfg.Params
	DefaultPort   string
	WalletRPCPort string
}

// mainNetParams contains parameters specific to the main network
// (wire.MainNet).
var mainNetParams = params{
	Params:        chaincfg.MainNetParams(),
	DefaultPort:   v1.DefaultMainnetPort,
	WalletRPCPort: "9111",
}

// testNet3Params contains parameters specific to the test network (version 3)
// (wire.TestNet3).
var testNet3Params = params{
	Params:        chaincfg.TestNet3Params(),
	DefaultPort:   v1.DefaultTestnetPort,
	WalletRPCPort: "19111",
}

// simNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var simNetParams = params{
	Params:        chaincfg.SimNetParams(),
	DefaultPort:   "49352",
	WalletRPCPort: "19558",
}

// netName returns the name used when referring to a decred network.  At the
// time of writing, dcrd currently places blocks for testnet version 3 in the
// data and log directory "testnet3", which does not match the Name field of
// the chaincfg parameters.  This function can be used to override this
// directory name as "testnet3" when the passed active network matches
// wire.TestNet3.
func netName(chainParams *params) string {
	switch chainParams.Net {
	case testNet3Params.Net:
		return "testnet3"
	default:
		return chainParams.Name
	}
}
