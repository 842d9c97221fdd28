// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	v1 "github.com/decred/dcrcommit/api/v1"
	"github.com/decred/dcrcommit/commitment"
	"github.com/decred/dcrcommit/dcrcommitd/backend"
	"github.com/decred/dcrcommit/dcrcommitd/backend/filesystem"
	"github.com/decred/dcrcommit/dcrcommitd/backend/memory"
	"github.com/decred/dcrcommit/dcrcommitd/backend/postgres"
	"github.com/decred/dcrcommit/dcrcommitd/dcrcommitwallet"
	"github.com/decred/dcrcommit/dcrcommitd/oracle"
	"github.com/decred/dcrcommit/dcrcommitd/submission"
	"github.com/decred/dcrcommit/dcrcommitd/sweeper"
	"github.com/decred/dcrcommit/util"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const (
	fStr = "20060102.150405"

	// postgresUser is the role the daemon connects as.
	postgresUser = "dcrcommitd"
)

// DcrcommitStore application context.
type DcrcommitStore struct {
	backend     backend.Backend
	backendName string
	cfg         *config
	router      *mux.Router
	feed        oracle.Feed
	sweeper     *sweeper.Sweeper
	registry    *submission.Registry // nil when submissions are disabled
	gateway     func(string) string
	events      *eventHub
	wallet      txLookuper // nil when registration is disabled
}

// txLookuper reports the confirmation state of registration transactions.
type txLookuper interface {
	Lookup(ctx context.Context, tx chainhash.Hash) (*dcrcommitwallet.TxLookupResult, error)
}

// internalError logs err under a fresh error code and tells the client to
// report the code.
func internalError(w http.ResponseWriter, r *http.Request, what string, err error) {
	errorCode := time.Now().Unix()
	log.Errorf("%v %v error code %v: %v", util.RemoteAddr(r), what,
		errorCode, err)

	util.RespondWithError(w, http.StatusInternalServerError,
		fmt.Sprintf("Could not %v, contact administrator and provide "+
			"the following error code: %v", what, errorCode))
}

func (d *DcrcommitStore) status(w http.ResponseWriter, r *http.Request) {
	var s v1.Status
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&s); err != nil {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid request payload")
		return
	}
	defer r.Body.Close()

	all, err := d.backend.List()
	if err != nil {
		internalError(w, r, "retrieve status", err)
		return
	}
	pending, err := d.backend.Pending()
	if err != nil {
		internalError(w, r, "retrieve status", err)
		return
	}

	reply := v1.StatusReply{
		ID:          s.ID,
		Network:     netName(activeNetParams),
		Backend:     d.backendName,
		Commitments: len(all),
		Pending:     len(pending),
		Sweeper:     d.sweeper != nil && d.sweeper.Running(),
	}
	if d.registry != nil {
		reply.Registrations = len(d.registry.Registrations())
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (d *DcrcommitStore) commit(w http.ResponseWriter, r *http.Request) {
	var c v1.Commit
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&c); err != nil {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid request payload")
		return
	}
	defer r.Body.Close()

	if !v1.RegexpSHA256.MatchString(c.Digest) {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid digest")
		return
	}
	description := strings.TrimSpace(c.Description)
	if description == "" {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid description")
		return
	}
	cond, err := convertCondition(c.Condition)
	if err != nil {
		util.RespondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid condition: %v", err))
		return
	}

	id, err := d.backend.Create(strings.ToLower(c.Digest), description,
		cond)
	if err != nil {
		if errors.Is(err, backend.ErrTryAgainLater) {
			util.RespondWithError(w, http.StatusServiceUnavailable,
				"Server busy, please try again later.")
			return
		}
		internalError(w, r, "store commitment", err)
		return
	}
	stored, err := d.backend.Get(id)
	if err != nil {
		internalError(w, r, "store commitment", err)
		return
	}

	log.Infof("Commit %v: %v %v %v", util.RemoteAddr(r), id,
		stored.CreatedAt.UTC().Format(fStr), cond.Describe())

	util.RespondWithJSON(w, http.StatusOK, v1.CommitReply{
		ID:         c.ID,
		Commitment: convertCommitmentToV1(*stored),
	})
}

func (d *DcrcommitStore) reveal(w http.ResponseWriter, r *http.Request) {
	var rv v1.Reveal
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&rv); err != nil {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid request payload")
		return
	}
	defer r.Body.Close()

	reply := v1.RevealReply{ID: rv.ID}
	via := util.RemoteAddr(r)

	before, err := d.backend.Get(rv.CommitmentID)
	if errors.Is(err, backend.ErrNotFound) {
		log.Infof("Reveal %v: %v doesn't exist", via, rv.CommitmentID)
		reply.Result = v1.ResultDoesntExistError
		util.RespondWithJSON(w, http.StatusOK, reply)
		return
	} else if err != nil {
		internalError(w, r, "reveal commitment", err)
		return
	}

	c, err := d.backend.Reveal(rv.CommitmentID, rv.Secret,
		commitment.Digest)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		reply.Result = v1.ResultDoesntExistError
	case errors.Is(err, backend.ErrMismatch):
		reply.Result = v1.ResultMismatchError
	case err != nil:
		internalError(w, r, "reveal commitment", err)
		return
	case !before.IsPending() || c.Reveal.Automatic:
		// Either revealed earlier or the sweeper won the race.
		reply.Result = v1.ResultAlreadyRevealed
		vc := convertCommitmentToV1(*c)
		reply.Commitment = &vc
	default:
		reply.Result = v1.ResultOK
		vc := convertCommitmentToV1(*c)
		reply.Commitment = &vc
		d.events.publishReveal(*c)
	}

	log.Infof("Reveal %v: %v %v", via, rv.CommitmentID,
		v1.Result[reply.Result])

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (d *DcrcommitStore) commitments(w http.ResponseWriter, r *http.Request) {
	var (
		cs  []commitment.Commitment
		err error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "":
		cs, err = d.backend.List()
	case v1.StatusPending:
		cs, err = d.backend.Pending()
	case v1.StatusRevealed, v1.StatusExpired:
		want, _ := commitment.ParseStatus(status)
		var all []commitment.Commitment
		all, err = d.backend.List()
		for _, c := range all {
			if c.Status == want {
				cs = append(cs, c)
			}
		}
	default:
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid status")
		return
	}
	if err != nil {
		internalError(w, r, "list commitments", err)
		return
	}

	util.RespondWithJSON(w, http.StatusOK, v1.CommitmentsReply{
		Commitments: convertCommitmentsToV1(cs),
	})
}

func (d *DcrcommitStore) getCommitment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, err := d.backend.Get(id)
	if errors.Is(err, backend.ErrNotFound) {
		util.RespondWithError(w, http.StatusNotFound,
			"Commitment not found")
		return
	} else if err != nil {
		internalError(w, r, "retrieve commitment", err)
		return
	}

	util.RespondWithJSON(w, http.StatusOK, convertCommitmentToV1(*c))
}

func (d *DcrcommitStore) prices(w http.ResponseWriter, r *http.Request) {
	util.RespondWithJSON(w, http.StatusOK, v1.PricesReply{
		Prices: convertPricesToV1(d.feed.Prices()),
	})
}

func (d *DcrcommitStore) submit(w http.ResponseWriter, r *http.Request) {
	var s v1.Submission
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&s); err != nil {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid request payload")
		return
	}
	defer r.Body.Close()

	receipt, err := d.registry.Submit(r.Context(),
		convertSubmissionForm(s.Form), s.WalletAddress)
	if err != nil {
		var ve submission.ValidationError
		if errors.As(err, &ve) {
			util.RespondWithError(w, http.StatusBadRequest, ve.Error())
			return
		}
		log.Errorf("Submit %v: %v", util.RemoteAddr(r), err)
		util.RespondWithError(w, http.StatusServiceUnavailable,
			"IPFS upload failed, please try again later.")
		return
	}

	log.Infof("Submit %v: %v %v", util.RemoteAddr(r),
		receipt.SubmissionID, receipt.CID)

	util.RespondWithJSON(w, http.StatusOK, v1.SubmissionReply{
		ID:           s.ID,
		SubmissionID: receipt.SubmissionID,
		CID:          receipt.CID,
		URL:          receipt.URL,
	})
}

func (d *DcrcommitStore) verifySubmission(w http.ResponseWriter, r *http.Request) {
	var sv v1.SubmissionVerify
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&sv); err != nil {
		util.RespondWithError(w, http.StatusBadRequest,
			"Invalid request payload")
		return
	}
	defer r.Body.Close()

	reg, err := d.registry.Verify(r.Context(), sv.CID, sv.Verified)
	switch {
	case errors.Is(err, submission.ErrInvalidCID):
		util.RespondWithError(w, http.StatusBadRequest, "Invalid CID")
		return
	case errors.Is(err, submission.ErrNotVerified):
		util.RespondWithError(w, http.StatusForbidden,
			"Submission not verified")
		return
	case errors.Is(err, submission.ErrRegistrationDisabled):
		util.RespondWithError(w, http.StatusServiceUnavailable,
			"Registration disabled")
		return
	case err != nil:
		internalError(w, r, "register submission", err)
		return
	}

	util.RespondWithJSON(w, http.StatusOK, v1.SubmissionVerifyReply{
		ID:           sv.ID,
		CID:          reg.CID,
		TxHash:       reg.TxHash.String(),
		RegisteredAt: reg.RegisteredAt.Unix(),
	})
}

func (d *DcrcommitStore) submissions(w http.ResponseWriter, r *http.Request) {
	verified, err := d.registry.Submissions(r.Context())
	if err != nil {
		internalError(w, r, "list submissions", err)
		return
	}

	reply := v1.SubmissionsReply{
		Submissions: make([]v1.VerifiedSubmission, 0, len(verified)),
	}
	for _, v := range verified {
		vs := convertVerifiedToV1(v, d.gateway(v.CID))
		if d.wallet != nil {
			tx, err := d.wallet.Lookup(r.Context(), v.TxHash)
			if err != nil {
				log.Warnf("Lookup %v: %v", v.TxHash, err)
			} else {
				vs.Confirmations = tx.Confirmations
				vs.BlockHeight = tx.BlockHeight
			}
		}
		reply.Submissions = append(reply.Submissions, vs)
	}
	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (d *DcrcommitStore) submissionsDisabled(w http.ResponseWriter, r *http.Request) {
	util.RespondWithError(w, http.StatusServiceUnavailable,
		"Submissions disabled")
}

func (d *DcrcommitStore) streamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("events: upgrade %v: %v", util.RemoteAddr(r), err)
		return
	}

	c := &eventClient{
		conn: conn,
		send: make(chan v1.Event, clientQueue),
		addr: util.RemoteAddr(r),
	}

	// Start with the current prices.
	initial := v1.Event{
		Type:   v1.EventPrices,
		Prices: convertPricesToV1(d.feed.Prices()),
	}
	if !d.events.register(c, initial) {
		conn.Close()
		return
	}
	log.Debugf("events: %v connected", c.addr)

	go c.writer()
	c.reader(d.events)
	log.Debugf("events: %v disconnected", c.addr)
}

// setupRoutes builds the router.  Submission routes answer 503 when no
// registry is configured.
func (d *DcrcommitStore) setupRoutes() {
	d.router = mux.NewRouter()

	d.router.HandleFunc(v1.StatusRoute, d.status).Methods("POST")
	d.router.HandleFunc(v1.CommitRoute, d.commit).Methods("POST")
	d.router.HandleFunc(v1.RevealRoute, d.reveal).Methods("POST")
	d.router.HandleFunc(v1.CommitmentsRoute, d.commitments).Methods("GET")
	d.router.HandleFunc(v1.CommitmentRoute, d.getCommitment).Methods("GET")
	d.router.HandleFunc(v1.PricesRoute, d.prices).Methods("GET")
	d.router.HandleFunc(v1.EventsRoute, d.streamEvents).Methods("GET")

	if d.registry != nil {
		d.router.HandleFunc(v1.SubmissionRoute,
			d.submit).Methods("POST")
		d.router.HandleFunc(v1.SubmissionVerifyRoute,
			d.verifySubmission).Methods("POST")
		d.router.HandleFunc(v1.SubmissionsRoute,
			d.submissions).Methods("GET")
	} else {
		d.router.HandleFunc(v1.SubmissionRoute,
			d.submissionsDisabled).Methods("POST")
		d.router.HandleFunc(v1.SubmissionVerifyRoute,
			d.submissionsDisabled).Methods("POST")
		d.router.HandleFunc(v1.SubmissionsRoute,
			d.submissionsDisabled).Methods("GET")
	}
}

// accessLog routes gorilla access log lines to the daemon logger.
type accessLog struct{}

func (accessLog) Write(p []byte) (int, error) {
	log.Debugf("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// recoveryLog routes recovered handler panics to the daemon logger.
type recoveryLog struct{}

func (recoveryLog) Println(v ...interface{}) {
	log.Errorf("%v", fmt.Sprint(v...))
}

// handler returns the router wrapped in access logging and panic recovery.
func (d *DcrcommitStore) handler() http.Handler {
	var h http.Handler = d.router
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLog{}),
		handlers.PrintRecoveryStack(true))(h)
	return handlers.CombinedLoggingHandler(io.Writer(accessLog{}), h)
}

// openBackend returns the configured commitment store.
func openBackend(cfg *config) (backend.Backend, error) {
	switch cfg.Backend {
	case backendMemory:
		m := memory.New()
		if cfg.SeedSamples {
			if err := seedSamples(m, time.Now()); err != nil {
				return nil, err
			}
		}
		return m, nil
	case backendFilesystem:
		return filesystem.New(cfg.DataDir)
	case backendPostgres:
		net := netName(activeNetParams)
		return postgres.New(postgresUser, cfg.PostgresHost, net,
			cfg.PostgresRootCert, cfg.PostgresCert, cfg.PostgresKey)
	}
	return nil, fmt.Errorf("invalid backend: %v", cfg.Backend)
}

// openFeed returns the configured price oracle.
func openFeed(cfg *config) (oracle.Feed, error) {
	switch cfg.Oracle {
	case oracleMock:
		return oracle.NewMock(cfg.OracleSchedule, time.Now().UnixNano())
	case oracleHTTP:
		schedule := cfg.OracleSchedule
		if schedule == oracle.DefaultMockSchedule {
			schedule = oracle.DefaultPollSchedule
		}
		return oracle.NewHTTP(cfg.OracleURL, schedule)
	}
	return nil, fmt.Errorf("invalid oracle: %v", cfg.Oracle)
}

func _main() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	loadedCfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("Could not load configuration file: %v", err)
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version : %v", version())
	log.Infof("Network : %v", activeNetParams.Params.Name)
	log.Infof("Home dir: %v", loadedCfg.HomeDir)
	log.Infof("Backend : %v", loadedCfg.Backend)
	log.Infof("Oracle  : %v", loadedCfg.Oracle)

	// Create the data directory in case it does not exist.
	err = os.MkdirAll(loadedCfg.DataDir, 0700)
	if err != nil {
		return err
	}

	// Generate the TLS cert and key file if both don't already
	// exist.
	if !util.FileExists(loadedCfg.HTTPSKey) &&
		!util.FileExists(loadedCfg.HTTPSCert) {
		log.Infof("Generating HTTPS keypair...")

		err := util.GenCertPair("dcrcommitd", loadedCfg.HTTPSCert,
			loadedCfg.HTTPSKey)
		if err != nil {
			return fmt.Errorf("unable to create https keypair: %v",
				err)
		}

		log.Infof("HTTPS keypair created...")
	}

	// Setup application context
	d := &DcrcommitStore{
		cfg:         loadedCfg,
		backendName: loadedCfg.Backend,
		events:      newEventHub(),
		gateway:     submission.GatewayURL,
	}

	d.backend, err = openBackend(loadedCfg)
	if err != nil {
		return err
	}
	defer d.backend.Close()

	d.feed, err = openFeed(loadedCfg)
	if err != nil {
		return err
	}
	defer d.feed.Close()
	d.feed.Subscribe(d.events.publishPrices)

	// Submissions need pinata, registration additionally needs a wallet.
	if loadedCfg.PinataJWT != "" {
		var registrar submission.Registrar
		if loadedCfg.WalletHost != "" {
			host := util.NormalizeAddress(loadedCfg.WalletHost,
				activeNetParams.WalletRPCPort)
			wallet, err := dcrcommitwallet.New(loadedCfg.WalletCert,
				host, []byte(loadedCfg.WalletPassphrase))
			if err != nil {
				return err
			}
			defer wallet.Close()
			registrar = wallet
			d.wallet = wallet

			bal, err := wallet.Balance(context.Background())
			if err != nil {
				log.Warnf("Wallet balance: %v", err)
			} else {
				log.Infof("Wallet  : %v spendable",
					dcrutil.Amount(bal.Spendable))
			}
		} else {
			log.Infof("Registration disabled: no wallet configured")
		}

		pinata := submission.NewPinata(loadedCfg.PinataURL,
			loadedCfg.IPFSGateway, loadedCfg.PinataJWT)
		d.gateway = pinata.URL
		d.registry = submission.NewRegistry(pinata, pinata, registrar,
			pinata.URL)
	} else {
		log.Infof("Submissions disabled: no pinata token configured")
	}

	d.sweeper = sweeper.New(d.backend, d.feed,
		sweeper.WithSchedule(loadedCfg.SweepSchedule),
		sweeper.WithRevealHandler(d.events.publishReveal))
	if err := d.sweeper.Start(); err != nil {
		return err
	}
	defer d.sweeper.Stop()

	d.setupRoutes()

	// Bind to a port and pass our router in
	servers := make([]*http.Server, 0, len(loadedCfg.Listeners))
	for _, listener := range loadedCfg.Listeners {
		servers = append(servers, &http.Server{
			Addr:              listener,
			Handler:           d.handler(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}
	listenC := listen(servers, loadedCfg.HTTPSCert, loadedCfg.HTTPSKey)

	// Tell user we are ready to go.
	log.Infof("Start of day")

	// Setup OS signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		log.Infof("Terminating with %v", sig)
	case err := <-listenC:
		log.Errorf("%v", err)
	}

	d.events.close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("Shutdown %v: %v", srv.Addr, err)
		}
	}

	log.Infof("Exiting")

	return nil
}

// listen starts every server.  The returned channel has room for the exit
// error of each server so that none of them blocks once the first one has
// been received.
func listen(servers []*http.Server, certFile, keyFile string) <-chan error {
	listenC := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			log.Infof("Listen: %v", srv.Addr)
			listenC <- srv.ListenAndServeTLS(certFile, keyFile)
		}()
	}
	return listenC
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
