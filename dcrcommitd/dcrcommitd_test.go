// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	v1 "github.com/decred/dcrcommit/api/v1"
	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend/memory"
	"github.com/decred/dcrcommit/dcrcommitd/dcrcommitwallet"
	"github.com/decred/dcrcommit/dcrcommitd/oracle"
	"github.com/decred/dcrcommit/dcrcommitd/submission"
	"github.com/decred/dcrcommit/dcrcommitd/sweeper"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "Bitcoin will reach $120,000 by March 2024 - I'm calling it now!"

// fakeIPFS stores documents in memory.
type fakeIPFS struct {
	sync.Mutex
	docs map[string]submission.Submission
	fail bool
}

func (f *fakeIPFS) Upload(ctx context.Context, s submission.Submission) (string, error) {
	f.Lock()
	defer f.Unlock()
	if f.fail {
		return "", errors.New("upload failed")
	}
	cid := fmt.Sprintf("bafytest%04d", len(f.docs))
	f.docs[cid] = s
	return cid, nil
}

func (f *fakeIPFS) Fetch(ctx context.Context, cid string) (*submission.Submission, error) {
	f.Lock()
	defer f.Unlock()
	s, ok := f.docs[cid]
	if !ok {
		return nil, errors.New("not found")
	}
	return &s, nil
}

type fakeRegistrar struct{}

func (fakeRegistrar) Register(ctx context.Context, cid string) (*chainhash.Hash, error) {
	h := chainhash.HashH([]byte(cid))
	return &h, nil
}

func newTestStore(t *testing.T, withRegistry bool) (*DcrcommitStore, *oracle.Static) {
	t.Helper()

	feed := oracle.NewStatic(commitment.Sample{
		Asset:      "BTC",
		Price:      decimal.NewFromInt(100000),
		ObservedAt: time.Now(),
	})
	d := &DcrcommitStore{
		backend:     memory.New(),
		backendName: backendMemory,
		feed:        feed,
		events:      newEventHub(),
		gateway:     submission.GatewayURL,
	}
	if withRegistry {
		ipfs := &fakeIPFS{docs: make(map[string]submission.Submission)}
		d.registry = submission.NewRegistry(ipfs, ipfs, fakeRegistrar{},
			nil)
	}
	d.sweeper = sweeper.New(d.backend, feed,
		sweeper.WithSchedule(""),
		sweeper.WithRevealHandler(d.events.publishReveal))
	d.setupRoutes()
	t.Cleanup(d.events.close)
	return d, feed
}

func request(t *testing.T, d *DcrcommitStore, method, route string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	r := httptest.NewRequest(method, route, &body)
	w := httptest.NewRecorder()
	d.handler().ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, reply interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(reply))
}

func commitPrice(t *testing.T, d *DcrcommitStore, secret, target string) v1.Commitment {
	t.Helper()

	w := request(t, d, http.MethodPost, v1.CommitRoute, v1.Commit{
		ID:          "c",
		Digest:      commitment.Digest(secret),
		Description: "Bitcoin Price Prediction",
		Condition: v1.Condition{
			Type:        v1.ConditionPrice,
			Asset:       "btc",
			TargetPrice: target,
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reply v1.CommitReply
	decode(t, w, &reply)
	require.Equal(t, "c", reply.ID)
	return reply.Commitment
}

func TestCommitReveal(t *testing.T) {
	d, _ := newTestStore(t, false)

	c := commitPrice(t, d, testSecret, "120000")
	require.Equal(t, v1.StatusPending, c.Status)
	require.Equal(t, "BTC", c.Condition.Asset)
	require.Equal(t, "Auto-reveal when BTC reaches $120,000",
		c.Condition.Description)
	require.Zero(t, c.RevealedAt)
	require.Empty(t, c.RevealedSecret)

	reveal := func(id, secret string) v1.RevealReply {
		w := request(t, d, http.MethodPost, v1.RevealRoute, v1.Reveal{
			ID:           "r",
			CommitmentID: id,
			Secret:       secret,
		})
		require.Equal(t, http.StatusOK, w.Code)
		var reply v1.RevealReply
		decode(t, w, &reply)
		return reply
	}

	reply := reveal("nope", testSecret)
	require.Equal(t, v1.ResultDoesntExistError, reply.Result)
	require.Nil(t, reply.Commitment)

	reply = reveal(c.ID, testSecret+" ")
	require.Equal(t, v1.ResultMismatchError, reply.Result)

	reply = reveal(c.ID, testSecret)
	require.Equal(t, v1.ResultOK, reply.Result)
	require.NotNil(t, reply.Commitment)
	require.Equal(t, v1.StatusRevealed, reply.Commitment.Status)
	require.Equal(t, testSecret, reply.Commitment.RevealedSecret)
	require.True(t, strings.HasSuffix(reply.Commitment.Proof, "zkproof"))
	require.False(t, reply.Commitment.Automatic)
	first := *reply.Commitment

	// Revealing again reports the original reveal.
	reply = reveal(c.ID, testSecret)
	require.Equal(t, v1.ResultAlreadyRevealed, reply.Result)
	require.Equal(t, first, *reply.Commitment)
}

func TestRevealAfterSweep(t *testing.T) {
	d, feed := newTestStore(t, false)

	c := commitPrice(t, d, testSecret, "120000")
	feed.Set(commitment.Sample{
		Asset:      "BTC",
		Price:      decimal.NewFromInt(120000),
		ObservedAt: time.Now(),
	})
	revealed, err := d.sweeper.Sweep()
	require.NoError(t, err)
	require.Len(t, revealed, 1)

	w := request(t, d, http.MethodPost, v1.RevealRoute, v1.Reveal{
		CommitmentID: c.ID,
		Secret:       testSecret,
	})
	var reply v1.RevealReply
	decode(t, w, &reply)
	require.Equal(t, v1.ResultAlreadyRevealed, reply.Result)
	require.True(t, reply.Commitment.Automatic)
	require.Equal(t, "[Auto-revealed when Auto-reveal when BTC reaches "+
		"$120,000]", reply.Commitment.RevealedSecret)
}

func TestCommitInvalid(t *testing.T) {
	d, _ := newTestStore(t, false)

	digest := commitment.Digest(testSecret)
	tests := []struct {
		name   string
		commit v1.Commit
	}{
		{"short digest", v1.Commit{
			Digest:      digest[:10],
			Description: "x",
			Condition:   v1.Condition{Type: v1.ConditionManual},
		}},
		{"no description", v1.Commit{
			Digest:    digest,
			Condition: v1.Condition{Type: v1.ConditionManual},
		}},
		{"unknown type", v1.Commit{
			Digest:      digest,
			Description: "x",
			Condition:   v1.Condition{Type: "oracle"},
		}},
		{"bad target", v1.Commit{
			Digest:      digest,
			Description: "x",
			Condition: v1.Condition{
				Type:        v1.ConditionPrice,
				Asset:       "BTC",
				TargetPrice: "lots",
			},
		}},
		{"bad asset", v1.Commit{
			Digest:      digest,
			Description: "x",
			Condition: v1.Condition{
				Type:        v1.ConditionPrice,
				Asset:       "BTC/USD",
				TargetPrice: "1",
			},
		}},
		{"time without expiry", v1.Commit{
			Digest:      digest,
			Description: "x",
			Condition:   v1.Condition{Type: v1.ConditionTime},
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := request(t, d, http.MethodPost, v1.CommitRoute,
				test.commit)
			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, v1.CommitRoute,
		strings.NewReader("{"))
	d.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommitmentsAndStatus(t *testing.T) {
	d, _ := newTestStore(t, false)

	pending := commitPrice(t, d, "one", "120000")
	w := request(t, d, http.MethodPost, v1.CommitRoute, v1.Commit{
		Digest:      commitment.Digest("two"),
		Description: "Time lock",
		Condition: v1.Condition{
			Type:   v1.ConditionTime,
			Expiry: time.Now().Add(time.Hour).Unix(),
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var locked v1.CommitReply
	decode(t, w, &locked)
	require.Equal(t, v1.ConditionTime, locked.Commitment.Condition.Type)

	w = request(t, d, http.MethodPost, v1.RevealRoute, v1.Reveal{
		CommitmentID: locked.Commitment.ID,
		Secret:       "two",
	})
	require.Equal(t, http.StatusOK, w.Code)

	list := func(query string) []v1.Commitment {
		w := request(t, d, http.MethodGet, v1.CommitmentsRoute+query,
			nil)
		require.Equal(t, http.StatusOK, w.Code)
		var reply v1.CommitmentsReply
		decode(t, w, &reply)
		return reply.Commitments
	}
	require.Len(t, list(""), 2)
	p := list("?status=pending")
	require.Len(t, p, 1)
	require.Equal(t, pending.ID, p[0].ID)
	r := list("?status=revealed")
	require.Len(t, r, 1)
	require.Equal(t, locked.Commitment.ID, r[0].ID)
	require.Len(t, list("?status=expired"), 0)

	w = request(t, d, http.MethodGet, v1.CommitmentsRoute+"?status=x", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, d, http.MethodGet, v1.CommitmentsRoute+pending.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got v1.Commitment
	decode(t, w, &got)
	require.Equal(t, pending, got)

	w = request(t, d, http.MethodGet, v1.CommitmentsRoute+"missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = request(t, d, http.MethodPost, v1.StatusRoute, v1.Status{ID: "s"})
	require.Equal(t, http.StatusOK, w.Code)
	var status v1.StatusReply
	decode(t, w, &status)
	require.Equal(t, "s", status.ID)
	require.Equal(t, backendMemory, status.Backend)
	require.Equal(t, 2, status.Commitments)
	require.Equal(t, 1, status.Pending)
	require.False(t, status.Sweeper)
}

func TestPrices(t *testing.T) {
	d, _ := newTestStore(t, false)

	w := request(t, d, http.MethodGet, v1.PricesRoute, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reply v1.PricesReply
	decode(t, w, &reply)
	require.Len(t, reply.Prices, 1)
	require.Equal(t, "BTC", reply.Prices[0].Asset)
	require.Equal(t, "100000", reply.Prices[0].Price)
}

func TestSubmissionsDisabled(t *testing.T) {
	d, _ := newTestStore(t, false)

	w := request(t, d, http.MethodPost, v1.SubmissionRoute, v1.Submission{})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = request(t, d, http.MethodGet, v1.SubmissionsRoute, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubmissionFlow(t *testing.T) {
	d, _ := newTestStore(t, true)

	// Missing required answers.
	w := request(t, d, http.MethodPost, v1.SubmissionRoute, v1.Submission{
		Form: v1.SubmissionForm{Age: "25-34"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(),
		"Please complete all required fields")

	form := v1.SubmissionForm{
		Age:               "25-34",
		CurrentMood:       "good",
		SleepQuality:      "fair",
		StressLevel:       "moderate",
		ExerciseFrequency: "weekly",
		DietPreference:    "omnivore",
		DrugUse:           []string{"none"},
	}
	w = request(t, d, http.MethodPost, v1.SubmissionRoute, v1.Submission{
		ID:            "s",
		WalletAddress: "0xabc",
		Form:          form,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sr v1.SubmissionReply
	decode(t, w, &sr)
	require.Equal(t, "s", sr.ID)
	require.True(t, strings.HasPrefix(sr.SubmissionID, "wellness_"))
	require.Equal(t, submission.GatewayURL(sr.CID), sr.URL)

	verify := func(cid string, verified bool) *httptest.ResponseRecorder {
		return request(t, d, http.MethodPost, v1.SubmissionVerifyRoute,
			v1.SubmissionVerify{CID: cid, Verified: verified})
	}
	require.Equal(t, http.StatusForbidden, verify(sr.CID, false).Code)
	require.Equal(t, http.StatusBadRequest, verify(" ", true).Code)

	w = verify(sr.CID, true)
	require.Equal(t, http.StatusOK, w.Code)
	var vr v1.SubmissionVerifyReply
	decode(t, w, &vr)
	require.Equal(t, sr.CID, vr.CID)
	require.Equal(t, chainhash.HashH([]byte(sr.CID)).String(), vr.TxHash)

	w = request(t, d, http.MethodGet, v1.SubmissionsRoute, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list v1.SubmissionsReply
	decode(t, w, &list)
	require.Len(t, list.Submissions, 1)
	vs := list.Submissions[0]
	require.Equal(t, sr.CID, vs.CID)
	require.Equal(t, vr.TxHash, vs.TxHash)
	require.Equal(t, "Wellness Assessment - Age: 25-34, Mood: good, "+
		"Stress: moderate", vs.Description)
	require.NotNil(t, vs.Form)
	require.Equal(t, form, *vs.Form)
}

func TestEvents(t *testing.T) {
	d, feed := newTestStore(t, false)
	feed.Subscribe(d.events.publishPrices)

	srv := httptest.NewServer(d.handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + v1.EventsRoute
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	next := func() v1.Event {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var e v1.Event
		require.NoError(t, conn.ReadJSON(&e))
		return e
	}

	e := next()
	require.Equal(t, v1.EventPrices, e.Type)
	require.Len(t, e.Prices, 1)

	// Registration happens before the initial event is queued.
	require.Equal(t, 1, d.events.Len())

	c := commitPrice(t, d, testSecret, "120000")
	feed.Set(commitment.Sample{
		Asset:      "BTC",
		Price:      decimal.NewFromInt(125000),
		ObservedAt: time.Now(),
	})
	e = next()
	require.Equal(t, v1.EventPrices, e.Type)
	require.Equal(t, "125000", e.Prices[0].Price)

	_, err = d.sweeper.Sweep()
	require.NoError(t, err)
	e = next()
	require.Equal(t, v1.EventReveal, e.Type)
	require.NotNil(t, e.Commitment)
	require.Equal(t, c.ID, e.Commitment.ID)
	require.True(t, e.Commitment.Automatic)
}

func TestSeedSamples(t *testing.T) {
	m := memory.New()
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, seedSamples(m, now))

	all, err := m.List()
	require.NoError(t, err)
	require.Len(t, all, len(sampleCommitments))

	// Newest first: The Flippening was created a day ago.
	require.Equal(t, "The Flippening Prediction", all[0].Description)
	require.Equal(t, "Metaverse Reality Check", all[len(all)-1].Description)

	revealed := 0
	for _, c := range all {
		require.True(t, c.Consistent())
		if c.Reveal != nil {
			revealed++
			require.Equal(t, commitment.Digest(c.Reveal.Secret), c.Hash)
			require.True(t, commitment.VerifyProof(c.Reveal.Proof,
				c.Hash))
		}
	}
	require.Equal(t, 2, revealed)

	pending, err := m.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 6)
}

func TestConvertCondition(t *testing.T) {
	cond, err := convertCondition(v1.Condition{
		Type:        "PRICE",
		Asset:       "eth",
		TargetPrice: "8000.50",
	})
	require.NoError(t, err)
	pt, ok := cond.(commitment.PriceTrigger)
	require.True(t, ok)
	require.Equal(t, "ETH", pt.Asset)
	require.True(t, pt.Target.Equal(decimal.RequireFromString("8000.5")))

	wire := convertConditionToV1(cond)
	require.Equal(t, v1.ConditionPrice, wire.Type)
	require.Equal(t, "8000.5", wire.TargetPrice)

	expiry := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)
	cond, err = convertCondition(v1.Condition{
		Type:   v1.ConditionTime,
		Expiry: expiry.Unix(),
	})
	require.NoError(t, err)
	require.Equal(t, expiry, cond.(commitment.TimeLock).Expiry)
	require.Equal(t, expiry.Unix(), convertConditionToV1(cond).Expiry)

	cond, err = convertCondition(v1.Condition{Type: v1.ConditionManual})
	require.NoError(t, err)
	require.Equal(t, commitment.Manual{}, cond)
}

// fakeWallet reports confirmations for known transactions.
type fakeWallet struct {
	txs map[chainhash.Hash]dcrcommitwallet.TxLookupResult
}

func (f *fakeWallet) Lookup(ctx context.Context, tx chainhash.Hash) (*dcrcommitwallet.TxLookupResult, error) {
	r, ok := f.txs[tx]
	if !ok {
		return nil, errors.New("unknown tx")
	}
	return &r, nil
}

func TestSubmissionConfirmations(t *testing.T) {
	d, _ := newTestStore(t, true)

	form := v1.SubmissionForm{
		Age:               "35-44",
		CurrentMood:       "great",
		SleepQuality:      "good",
		StressLevel:       "low",
		ExerciseFrequency: "daily",
		DietPreference:    "vegan",
	}
	var cids []string
	for i := 0; i < 2; i++ {
		w := request(t, d, http.MethodPost, v1.SubmissionRoute,
			v1.Submission{Form: form})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var sr v1.SubmissionReply
		decode(t, w, &sr)
		w = request(t, d, http.MethodPost, v1.SubmissionVerifyRoute,
			v1.SubmissionVerify{CID: sr.CID, Verified: true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		cids = append(cids, sr.CID)
	}

	// Only the first registration is known to the wallet.
	d.wallet = &fakeWallet{
		txs: map[chainhash.Hash]dcrcommitwallet.TxLookupResult{
			chainhash.HashH([]byte(cids[0])): {
				Confirmations: 6,
				BlockHeight:   1000,
			},
		},
	}

	w := request(t, d, http.MethodGet, v1.SubmissionsRoute, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list v1.SubmissionsReply
	decode(t, w, &list)
	require.Len(t, list.Submissions, 2)
	for _, vs := range list.Submissions {
		switch vs.CID {
		case cids[0]:
			require.Equal(t, int32(6), vs.Confirmations)
			require.Equal(t, int32(1000), vs.BlockHeight)
		case cids[1]:
			require.Zero(t, vs.Confirmations)
			require.Zero(t, vs.BlockHeight)
		default:
			t.Fatalf("unexpected cid %v", vs.CID)
		}
	}
}

func TestEventHubRegister(t *testing.T) {
	h := newEventHub()
	initial := v1.Event{Type: v1.EventPrices}

	c := &eventClient{send: make(chan v1.Event, clientQueue)}
	require.True(t, h.register(c, initial))
	require.Equal(t, 1, h.Len())

	// The initial event is queued before any broadcast or close.
	h.close()
	e, ok := <-c.send
	require.True(t, ok)
	require.Equal(t, initial, e)
	_, ok = <-c.send
	require.False(t, ok)

	// A closed hub refuses clients without touching their queue.
	c = &eventClient{send: make(chan v1.Event, clientQueue)}
	require.False(t, h.register(c, initial))
	require.Zero(t, h.Len())
	require.Zero(t, len(c.send))
}

func TestListenReportsEveryServer(t *testing.T) {
	servers := []*http.Server{
		{Addr: "127.0.0.1:0"},
		{Addr: "127.0.0.1:0"},
		{Addr: "127.0.0.1:0"},
	}
	listenC := listen(servers, "missing.cert", "missing.key")

	// Every server fails on the missing certificate and its error is
	// queued even though nobody reads the channel yet.
	require.Eventually(t, func() bool {
		return len(listenC) == len(servers)
	}, 5*time.Second, 10*time.Millisecond)
	for range servers {
		require.Error(t, <-listenC)
	}
}
