// Copyright (c) 2020-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package postgres

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend"
	"github.com/shopspring/decimal"
)

func TestBuildAddress(t *testing.T) {
	addr, err := buildAddress("dcrcommit", "localhost:5432", "testnet3",
		"/certs/ca.crt", "/certs/client.crt", "/certs/client.key")
	if err != nil {
		t.Fatal(err)
	}
	prefix := "postgresql://dcrcommit@localhost:5432/testnet3_dcrcommit?"
	if !strings.HasPrefix(addr, prefix) {
		t.Fatalf("invalid address %v", addr)
	}
	v, err := url.ParseQuery(strings.TrimPrefix(addr, prefix))
	if err != nil {
		t.Fatal(err)
	}
	if v.Get("sslmode") != "require" ||
		v.Get("sslrootcert") != "/certs/ca.crt" ||
		v.Get("sslkey") != "/certs/client.key" {
		t.Fatalf("invalid query %v", spew.Sdump(v))
	}
}

func TestRowConversion(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tests := []commitment.Commitment{
		{
			ID:          commitment.NewID(),
			Hash:        commitment.Digest("a"),
			Description: "manual",
			Condition:   commitment.Manual{},
			Status:      commitment.StatusPending,
			CreatedAt:   now,
		},
		{
			ID:          commitment.NewID(),
			Hash:        commitment.Digest("b"),
			Description: "price",
			Condition: commitment.PriceTrigger{Asset: "BTC",
				Target: decimal.RequireFromString("120000.5")},
			Status:    commitment.StatusRevealed,
			CreatedAt: now,
			Reveal: &commitment.Reveal{
				RevealedAt: now.Add(time.Minute),
				Secret:     "[Auto-revealed when BTC reaches $120,000.5]",
				Proof:      "abc...zkproof",
				Automatic:  true,
			},
		},
		{
			ID:          commitment.NewID(),
			Hash:        commitment.Digest("c"),
			Description: "time",
			Condition:   commitment.TimeLock{Expiry: now.Add(time.Hour)},
			Status:      commitment.StatusPending,
			CreatedAt:   now,
		},
	}
	for _, c := range tests {
		r := backend.NewRecord(c)
		row := fromRecord(r)
		if row.Secret.Valid != (c.Reveal != nil) {
			t.Fatalf("%v: invalid secret column %v", c.Description,
				spew.Sdump(row))
		}
		if row.ConditionAsset.Valid != (c.Condition.Kind() == commitment.KindPrice) {
			t.Fatalf("%v: invalid asset column %v", c.Description,
				spew.Sdump(row))
		}
		if row.record() != r {
			t.Fatalf("%v: want %v got %v", c.Description,
				spew.Sdump(r), spew.Sdump(row.record()))
		}
		got, err := row.record().Commitment()
		if err != nil {
			t.Fatal(err)
		}
		if backend.NewRecord(*got) != r {
			t.Fatalf("%v: want %v got %v", c.Description,
				spew.Sdump(c), spew.Sdump(got))
		}
	}
}
