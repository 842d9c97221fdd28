// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sweeper

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend"
	"github.com/decred/dcrcommit/dcrcommitd/backend/memory"
	"github.com/decred/dcrcommit/dcrcommitd/oracle"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func btc(price int64) commitment.Sample {
	return commitment.Sample{Asset: "BTC", Price: decimal.NewFromInt(price)}
}

func TestSweepPrice(t *testing.T) {
	m := memory.New()
	feed := oracle.NewStatic(btc(119999))

	cond := commitment.PriceTrigger{Asset: "BTC",
		Target: decimal.NewFromInt(120000)}
	id, err := m.Create(commitment.Digest("moon"), "btc", cond)
	require.NoError(t, err)
	manual, err := m.Create(commitment.Digest("manual"), "manual",
		commitment.Manual{})
	require.NoError(t, err)

	var notified []commitment.Commitment
	s := New(m, feed, WithRevealHandler(func(c commitment.Commitment) {
		notified = append(notified, c)
	}))

	revealed, err := s.Sweep()
	require.NoError(t, err)
	require.Empty(t, revealed)

	feed.Set(btc(120000))
	revealed, err = s.Sweep()
	require.NoError(t, err)
	require.Len(t, revealed, 1)
	require.Equal(t, id, revealed[0].ID)
	require.Equal(t, notified, revealed)

	c, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, commitment.StatusRevealed, c.Status)
	require.True(t, c.Reveal.Automatic)
	require.Equal(t, commitment.AutoRevealPayload(cond), c.Reveal.Secret)
	require.Equal(t, "[Auto-revealed when Auto-reveal when BTC reaches "+
		"$120,000]", c.Reveal.Secret)
	require.True(t, commitment.VerifyProof(c.Reveal.Proof, c.Hash))

	// Manual commitments are never auto-revealed.
	c, err = m.Get(manual)
	require.NoError(t, err)
	require.True(t, c.IsPending())

	// A second pass has nothing left to do.
	revealed, err = s.Sweep()
	require.NoError(t, err)
	require.Empty(t, revealed)
	require.Len(t, notified, 1)
}

func TestSweepTimeLock(t *testing.T) {
	m := memory.New()
	feed := oracle.NewStatic()

	expiry := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	id, err := m.Create(commitment.Digest("later"), "time",
		commitment.TimeLock{Expiry: expiry})
	require.NoError(t, err)

	now := expiry.Add(-time.Second)
	s := New(m, feed, WithClock(func() time.Time { return now }))

	revealed, err := s.Sweep()
	require.NoError(t, err)
	require.Empty(t, revealed)

	now = expiry
	revealed, err = s.Sweep()
	require.NoError(t, err)
	require.Len(t, revealed, 1)
	require.Equal(t, id, revealed[0].ID)
	require.Equal(t, "[Auto-revealed when "+
		commitment.TimeLock{Expiry: expiry}.Describe()+"]",
		revealed[0].Reveal.Secret)
}

func TestSweepAlreadyRevealed(t *testing.T) {
	m := memory.New()
	feed := oracle.NewStatic(btc(130000))

	secret := "manual first"
	id, err := m.Create(commitment.Digest(secret), "btc",
		commitment.PriceTrigger{Asset: "BTC",
			Target: decimal.NewFromInt(120000)})
	require.NoError(t, err)
	_, err = m.Reveal(id, secret, commitment.Digest)
	require.NoError(t, err)

	s := New(m, feed)
	revealed, err := s.Sweep()
	require.NoError(t, err)
	require.Empty(t, revealed)

	c, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, secret, c.Reveal.Secret)
	require.False(t, c.Reveal.Automatic)
}

// flaky fails AutoReveal for a single id.
type flaky struct {
	*memory.Memory
	bad string
}

func (f *flaky) AutoReveal(id, payload, proof string) (*commitment.Commitment, error) {
	if id == f.bad {
		return nil, backend.ErrTryAgainLater
	}
	return f.Memory.AutoReveal(id, payload, proof)
}

func TestSweepContinuesOnFailure(t *testing.T) {
	m := memory.New()
	feed := oracle.NewStatic(btc(200000))
	cond := commitment.PriceTrigger{Asset: "BTC",
		Target: decimal.NewFromInt(100000)}

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := m.Create(commitment.Digest("x"), "d", cond)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	s := New(&flaky{Memory: m, bad: ids[1]}, feed)
	revealed, err := s.Sweep()
	require.NoError(t, err)
	require.Len(t, revealed, 2)

	c, err := m.Get(ids[1])
	require.NoError(t, err)
	require.True(t, c.IsPending())
}

// broken fails listing pending commitments.
type broken struct {
	*memory.Memory
}

func (broken) Pending() ([]commitment.Commitment, error) {
	return nil, errors.New("broken")
}

func TestSweepPendingError(t *testing.T) {
	s := New(broken{memory.New()}, oracle.NewStatic())
	_, err := s.Sweep()
	require.Error(t, err)
}

// countingFeed records how often Subscribe was called.
type countingFeed struct {
	*oracle.Static
	subscriptions int
}

func (c *countingFeed) Subscribe(fn func(commitment.Snapshot)) {
	c.subscriptions++
	c.Static.Subscribe(fn)
}

func TestStartStop(t *testing.T) {
	m := memory.New()
	feed := &countingFeed{Static: oracle.NewStatic(btc(100000))}
	id, err := m.Create(commitment.Digest("x"), "d",
		commitment.PriceTrigger{Asset: "BTC",
			Target: decimal.NewFromInt(110000)})
	require.NoError(t, err)

	var (
		mtx      sync.Mutex
		notified int
	)
	s := New(m, feed, WithSchedule("@every 1h"),
		WithRevealHandler(func(commitment.Commitment) {
			mtx.Lock()
			notified++
			mtx.Unlock()
		}))

	// Not started, price updates are ignored.
	feed.Set(btc(111000))
	c, err := m.Get(id)
	require.NoError(t, err)
	require.True(t, c.IsPending())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	require.True(t, s.Running())

	// Price updates trigger a pass.
	feed.Set(btc(112000))
	c, err = m.Get(id)
	require.NoError(t, err)
	require.Equal(t, commitment.StatusRevealed, c.Status)

	feed.Set(btc(113000))
	mtx.Lock()
	require.Equal(t, 1, notified)
	mtx.Unlock()

	s.Stop()
	s.Stop()
	require.False(t, s.Running())

	// Restarting must not subscribe again.
	require.NoError(t, s.Start())
	s.Stop()
	require.Equal(t, 1, feed.subscriptions)

	require.Error(t, New(m, feed, WithSchedule("bogus")).Start())
}
