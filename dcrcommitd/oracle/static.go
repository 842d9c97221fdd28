// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package oracle

import (
	"github.com/decred/dcrcommit/commitment"
)

var _ Feed = (*Static)(nil)

// Static is a feed whose prices only change when Set is called.
type Static struct {
	publisher
}

// NewStatic returns a feed initialized with samples.
func NewStatic(samples ...commitment.Sample) *Static {
	s := &Static{}
	s.publisher.init()
	for _, v := range samples {
		s.samples[v.Asset] = v
	}
	return s
}

// Set replaces the prices of the provided assets and notifies subscribers.
func (s *Static) Set(samples ...commitment.Sample) {
	s.publish(samples)
}

// Close is a no-op.
func (s *Static) Close() {}
