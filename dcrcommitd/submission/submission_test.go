// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func completeForm() FormData {
	return FormData{
		Age:               "25-34",
		CurrentMood:       "good",
		SleepQuality:      "fair",
		StressLevel:       "moderate",
		ExerciseFrequency: "weekly",
		DietPreference:    "omnivore",
		DrugUse:           []string{"none"},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(completeForm()))

	err := Validate(FormData{})
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	require.Equal(t, []string{
		"Age range is required",
		"Current mood is required",
		"Sleep quality is required",
		"Stress level is required",
		"Exercise frequency is required",
		"Diet preference is required",
	}, ve.Errors)

	f := completeForm()
	f.StressLevel = ""
	err = Validate(f)
	require.EqualError(t, err, "Please complete all required fields: "+
		"Stress level is required")
}

func TestNewSubmissionID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	re := regexp.MustCompile(`^wellness_([0-9a-z]+)_[0-9a-z]{6}$`)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewSubmissionID(now)
		m := re.FindStringSubmatch(id)
		require.NotNil(t, m, id)
		require.Equal(t, "loyw3v28", m[1])
		seen[id] = struct{}{}
	}
	require.Greater(t, len(seen), 90)
}

func TestNew(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 5e8, time.UTC)
	s := New(completeForm(), "0xabc", now)
	require.Equal(t, "2024-03-01T12:30:00.500Z", s.Metadata.Timestamp)
	require.Equal(t, Version, s.Metadata.Version)
	require.True(t, s.Metadata.Anonymous)
	require.Equal(t, "0xabc", s.Metadata.WalletAddress)
	require.True(t, strings.HasPrefix(s.Metadata.SubmissionID, "wellness_"))
}

func TestDescription(t *testing.T) {
	s := New(completeForm(), "", time.Now())
	require.Equal(t, "Wellness Assessment - Age: 25-34, Mood: good, "+
		"Stress: moderate", Description(&s))
	require.Equal(t, "Verified Wellness Assessment", Description(nil))
	require.Equal(t, "Verified Wellness Assessment",
		Description(&Submission{}))
	s.FormData.Age = ""
	s.FormData.CurrentMood = ""
	require.Equal(t, "Wellness Assessment - Stress: moderate",
		Description(&s))
}

func TestGatewayURL(t *testing.T) {
	require.Equal(t, "https://gateway.pinata.cloud/ipfs/QmX", GatewayURL("QmX"))
	p := NewPinata("", "http://localhost:8080/", "")
	require.Equal(t, "http://localhost:8080/ipfs/QmX", p.URL("QmX"))
}

// fakePinata emulates the pinning API and the gateway.
type fakePinata struct {
	sync.Mutex
	docs map[string][]byte
	fail bool
}

func (f *fakePinata) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.Lock()
	defer f.Unlock()

	if f.fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == pinJSONRoute:
		if r.Header.Get("Authorization") != "Bearer jwt" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req pinJSONRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.PinataMetadata.Name != "Wellness Assessment - "+
			req.PinataContent.Metadata.SubmissionID ||
			req.PinataMetadata.KeyValues["type"] != "wellness-assessment" {
			http.Error(w, "bad metadata", http.StatusBadRequest)
			return
		}
		doc, _ := json.Marshal(req.PinataContent)
		cid := "Qm" + req.PinataContent.Metadata.SubmissionID
		f.docs[cid] = doc
		_ = json.NewEncoder(w).Encode(PinResult{IpfsHash: cid,
			PinSize: int64(len(doc))})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/ipfs/"):
		doc, ok := f.docs[strings.TrimPrefix(r.URL.Path, "/ipfs/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(doc)
	default:
		http.NotFound(w, r)
	}
}

func newFakePinata(t *testing.T) (*fakePinata, *Pinata) {
	f := &fakePinata{docs: make(map[string][]byte)}
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return f, NewPinata(ts.URL, ts.URL, "jwt")
}

func TestPinataUploadFetch(t *testing.T) {
	f, p := newFakePinata(t)
	ctx := context.Background()

	s := New(completeForm(), "0xabc", time.Now())
	cid, err := p.Upload(ctx, s)
	require.NoError(t, err)
	require.Equal(t, "Qm"+s.Metadata.SubmissionID, cid)

	got, err := p.Fetch(ctx, cid)
	require.NoError(t, err)
	require.Equal(t, s, *got)

	_, err = p.Fetch(ctx, "QmMissing")
	require.Error(t, err)

	bad := NewPinata(p.apiURL, p.gateway, "wrong")
	_, err = bad.Upload(ctx, s)
	require.Error(t, err)
	require.Contains(t, err.Error(), "IPFS upload failed")

	f.Lock()
	f.fail = true
	f.Unlock()
	_, err = p.Upload(ctx, s)
	require.Error(t, err)
}

// fakeRegistrar hands out deterministic transaction hashes.
type fakeRegistrar struct {
	sync.Mutex
	calls []string
	err   error
}

func (f *fakeRegistrar) Register(ctx context.Context, cid string) (*chainhash.Hash, error) {
	f.Lock()
	defer f.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, cid)
	h := chainhash.HashH([]byte(cid))
	return &h, nil
}

func TestRegistry(t *testing.T) {
	_, p := newFakePinata(t)
	reg := &fakeRegistrar{}
	r := NewRegistry(p, p, reg, p.URL)
	ctx := context.Background()

	// Invalid forms are never uploaded.
	_, err := r.Submit(ctx, FormData{}, "")
	var ve ValidationError
	require.True(t, errors.As(err, &ve))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	receipts := make([]*Receipt, 0, 3)
	for i := 0; i < 3; i++ {
		r.myNow = func() time.Time {
			return now.Add(time.Duration(i) * time.Hour)
		}
		rc, err := r.Submit(ctx, completeForm(), "")
		require.NoError(t, err)
		require.Equal(t, p.URL(rc.CID), rc.URL)
		receipts = append(receipts, rc)
	}

	r.myNow = func() time.Time {
		return now.Add(3 * time.Hour)
	}

	// Unverified submissions are not registered.
	_, err = r.Verify(ctx, receipts[0].CID, false)
	require.ErrorIs(t, err, ErrNotVerified)
	require.Empty(t, reg.calls)

	_, err = r.Verify(ctx, " ", true)
	require.ErrorIs(t, err, ErrInvalidCID)

	for _, rc := range receipts {
		registration, err := r.Verify(ctx, rc.CID, true)
		require.NoError(t, err)
		require.Equal(t, chainhash.HashH([]byte(rc.CID)),
			registration.TxHash)
	}

	// Registering twice is idempotent.
	_, err = r.Verify(ctx, receipts[0].CID, true)
	require.NoError(t, err)
	require.Len(t, reg.calls, 3)

	// A registration whose document is gone.
	_, err = r.Verify(ctx, "QmGone", true)
	require.NoError(t, err)

	verified, err := r.Submissions(ctx)
	require.NoError(t, err)
	require.Len(t, verified, 4)

	// The missing document was registered last, with the current clock.
	require.Equal(t, "QmGone", verified[0].CID)
	require.Nil(t, verified[0].Submission)
	require.Equal(t, "Verified Wellness Assessment",
		verified[0].Description)

	// Newest first.
	require.Equal(t, receipts[2].CID, verified[1].CID)
	require.Equal(t, receipts[1].CID, verified[2].CID)
	require.Equal(t, receipts[0].CID, verified[3].CID)
	require.Equal(t, "verified_"+receipts[0].CID[:8], verified[3].ID)
	require.Equal(t, "Wellness Assessment - Age: 25-34, Mood: good, "+
		"Stress: moderate", verified[3].Description)
}

func TestRegistryRegistrarError(t *testing.T) {
	_, p := newFakePinata(t)
	reg := &fakeRegistrar{err: errors.New("wallet offline")}
	r := NewRegistry(p, p, reg, nil)

	_, err := r.Verify(context.Background(), "QmX", true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "wallet offline")
	require.Empty(t, r.Registrations())
}

func TestRegistryDisabled(t *testing.T) {
	_, p := newFakePinata(t)
	r := NewRegistry(p, p, nil, nil)

	_, err := r.Verify(context.Background(), "QmX", true)
	require.ErrorIs(t, err, ErrRegistrationDisabled)

	// The verification outcome is checked first.
	_, err = r.Verify(context.Background(), "QmX", false)
	require.ErrorIs(t, err, ErrNotVerified)
}

// slowRegistrar blocks in Register until release is closed.
type slowRegistrar struct {
	fakeRegistrar
	entered chan struct{}
	release chan struct{}
}

func (s *slowRegistrar) Register(ctx context.Context, cid string) (*chainhash.Hash, error) {
	s.entered <- struct{}{}
	<-s.release
	return s.fakeRegistrar.Register(ctx, cid)
}

func TestRegistryVerifyUnlocked(t *testing.T) {
	_, p := newFakePinata(t)
	reg := &slowRegistrar{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	r := NewRegistry(p, p, reg, nil)
	ctx := context.Background()

	type result struct {
		reg *Registration
		err error
	}
	results := make(chan result, 2)
	verify := func() {
		registration, err := r.Verify(ctx, "QmSlow", true)
		results <- result{registration, err}
	}
	go verify()

	select {
	case <-reg.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("registrar not called")
	}

	// Listing does not wait for the wallet.
	listed := make(chan []Registration, 1)
	go func() { listed <- r.Registrations() }()
	select {
	case regs := <-listed:
		require.Empty(t, regs)
	case <-time.After(5 * time.Second):
		t.Fatal("Registrations blocked by registration in flight")
	}

	// A second verification of the same cid waits for the first.
	go verify()
	select {
	case <-reg.entered:
		t.Fatal("cid registered twice")
	case <-time.After(100 * time.Millisecond):
	}

	close(reg.release)
	for i := 0; i < 2; i++ {
		res := <-results
		require.NoError(t, res.err)
		require.Equal(t, chainhash.HashH([]byte("QmSlow")), res.reg.TxHash)
	}
	require.Len(t, reg.calls, 1)
	require.Len(t, r.Registrations(), 1)

	// A waiting caller gives up with its context.
	reg.release = make(chan struct{})
	go func() {
		_, err := r.Verify(ctx, "QmOther", true)
		results <- result{err: err}
	}()
	<-reg.entered
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := r.Verify(cctx, "QmOther", true)
	require.ErrorIs(t, err, context.Canceled)
	close(reg.release)
	require.NoError(t, (<-results).err)
}
