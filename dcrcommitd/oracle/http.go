// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPollSchedule is how often the HTTP feed polls its endpoint.
	DefaultPollSchedule = "@every 10s"

	pollTimeout = 5 * time.Second
)

var _ Feed = (*HTTP)(nil)

// HTTP polls a JSON endpoint that maps asset symbols to decimal prices, for
// example {"BTC":"101000.12","ETH":"3800"}.
type HTTP struct {
	publisher

	url       string
	client    *http.Client
	scheduler *scheduler
}

// NewHTTP returns a feed polling url on every tick of schedule.  The endpoint
// is queried once before NewHTTP returns so the feed starts populated.  A
// failed initial query is logged and the feed starts empty.
func NewHTTP(url, schedule string) (*HTTP, error) {
	h := &HTTP{
		url:    url,
		client: &http.Client{Timeout: pollTimeout},
	}
	h.publisher.init()

	if err := h.Poll(context.Background()); err != nil {
		log.Errorf("Initial price poll: %v", err)
	}

	if schedule != "" {
		var err error
		h.scheduler, err = newScheduler(schedule, func() {
			if err := h.Poll(context.Background()); err != nil {
				log.Errorf("Price poll: %v", err)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	return h, nil
}

// fetch retrieves and decodes the price document.
func (h *HTTP) fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	r, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "HTTP Get")
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(r.Body, 512))
		return nil, errors.Errorf("invalid price answer: %v %s",
			r.StatusCode, body)
	}

	var prices map[string]decimal.Decimal
	if err := json.NewDecoder(r.Body).Decode(&prices); err != nil {
		return nil, errors.Wrap(err, "decode prices")
	}
	return prices, nil
}

// Poll queries the endpoint once and publishes the result.  On failure the
// previous prices are kept.
func (h *HTTP) Poll(ctx context.Context) error {
	prices, err := h.fetch(ctx)
	if err != nil {
		return err
	}

	now := h.myNow()
	samples := make([]commitment.Sample, 0, len(prices))
	for asset, price := range prices {
		if price.IsNegative() {
			log.Warnf("Ignoring negative price %v for %v", price, asset)
			continue
		}
		samples = append(samples, commitment.Sample{
			Asset:      strings.ToUpper(asset),
			Price:      price,
			ObservedAt: now,
		})
	}
	h.publish(samples)

	log.Tracef("Poll: %v", samples)

	return nil
}

// Close stops polling.
func (h *HTTP) Close() {
	h.scheduler.stop()
}
