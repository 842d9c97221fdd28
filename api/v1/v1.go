// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package v1

import (
	"fmt"
	"regexp"
)

const (
	// APIVersion defines the version number for this code.
	APIVersion = 1

	// ResultOK indicates the operation completed successfully.
	ResultOK = 0

	// ResultDoesntExistError indicates the commitment does not exist.
	ResultDoesntExistError = 1

	// ResultMismatchError indicates the secret does not hash to the
	// committed digest.
	ResultMismatchError = 2

	// ResultAlreadyRevealed indicates the commitment was revealed before.
	// The reply carries the original reveal.
	ResultAlreadyRevealed = 3

	// DefaultMainnetHost indicates the default mainnet commitment
	// server.
	DefaultMainnetHost = "localhost"

	// DefaultMainnetPort indicates the default mainnet port.
	DefaultMainnetPort = "49252"

	// DefaultTestnetHost indicates the default testnet commitment
	// server.
	DefaultTestnetHost = "localhost"

	// DefaultTestnetPort indicates the default testnet port.
	DefaultTestnetPort = "59252"

	// Condition types.
	ConditionManual = "manual"
	ConditionPrice  = "price"
	ConditionTime   = "time"

	// Commitment states.
	StatusPending  = "pending"
	StatusRevealed = "revealed"
	StatusExpired  = "expired"

	// Event types sent on the events stream.
	EventPrices = "prices"
	EventReveal = "reveal"
)

var (
	// RoutePrefix is the route url prefix for this version.
	RoutePrefix = fmt.Sprintf("/v%v", APIVersion)

	// StatusRoute defines the API route for retrieving the server status.
	StatusRoute = RoutePrefix + "/status/"

	// CommitRoute defines the API route for creating a commitment.
	CommitRoute = RoutePrefix + "/commit/"

	// RevealRoute defines the API route for revealing a commitment.
	RevealRoute = RoutePrefix + "/reveal/"

	// CommitmentsRoute defines the API route for listing commitments.
	CommitmentsRoute = RoutePrefix + "/commitments/"

	// CommitmentRoute defines the API route for a single commitment.
	CommitmentRoute = CommitmentsRoute + "{id}"

	// PricesRoute defines the API route for the latest oracle prices.
	PricesRoute = RoutePrefix + "/prices/"

	// SubmissionRoute defines the API route for uploading a wellness
	// assessment.
	SubmissionRoute = RoutePrefix + "/submission/"

	// SubmissionVerifyRoute defines the API route for registering a
	// verified submission.
	SubmissionVerifyRoute = SubmissionRoute + "verify/"

	// SubmissionsRoute defines the API route for listing verified
	// submissions.
	SubmissionsRoute = RoutePrefix + "/submissions/"

	// EventsRoute defines the websocket route streaming price and reveal
	// events.
	EventsRoute = RoutePrefix + "/events/"

	// Result defines legible string messages to a reveal result code.
	Result = map[int]string{
		ResultOK:               "OK",
		ResultDoesntExistError: "Doesn't exist",
		ResultMismatchError:    "Secret doesn't match",
		ResultAlreadyRevealed:  "Already revealed",
	}

	// RegexpSHA256 is the valid text representation of a sha256 digest.
	RegexpSHA256 = regexp.MustCompile("^[A-Fa-f0-9]{64}$")

	// RegexpAsset is the valid text representation of an asset symbol.
	RegexpAsset = regexp.MustCompile("^[A-Za-z0-9]{1,10}$")
)

// Status is used to ask the server if everything is running properly.
// ID is user settable and can be used as a unique identifier by the client.
type Status struct {
	ID string `json:"id"`
}

// StatusReply is returned by the server if everything is running properly.
type StatusReply struct {
	ID            string `json:"id"`
	Network       string `json:"network"`
	Backend       string `json:"backend"`
	Commitments   int    `json:"commitments"`
	Pending       int    `json:"pending"`
	Registrations int    `json:"registrations"`
	Sweeper       bool   `json:"sweeper"`
}

// Condition is the wire representation of a reveal condition.
// TargetPrice is a decimal string and Expiry is a unix timestamp in seconds.
type Condition struct {
	Type        string `json:"type"`
	Asset       string `json:"asset,omitempty"`
	TargetPrice string `json:"targetprice,omitempty"`
	Expiry      int64  `json:"expiry,omitempty"`
	Description string `json:"description,omitempty"`
}

// Commit asks the server to store a new pending commitment.  Digest is the
// hex encoded SHA256 of the secret.
type Commit struct {
	ID          string    `json:"id"`
	Digest      string    `json:"digest"`
	Description string    `json:"description"`
	Condition   Condition `json:"condition"`
}

// CommitReply returns the stored commitment.
type CommitReply struct {
	ID         string     `json:"id"`
	Commitment Commitment `json:"commitment"`
}

// Reveal discloses the secret of a commitment.
type Reveal struct {
	ID           string `json:"id"`
	CommitmentID string `json:"commitmentid"`
	Secret       string `json:"secret"`
}

// RevealReply carries the result code and, when the commitment exists, its
// current state.
type RevealReply struct {
	ID         string      `json:"id"`
	Result     int         `json:"result"`
	Commitment *Commitment `json:"commitment,omitempty"`
}

// Commitment is the wire representation of a commitment.  Times are unix
// seconds; reveal fields are omitted while the commitment is pending.
type Commitment struct {
	ID             string    `json:"id"`
	Hash           string    `json:"hash"`
	Description    string    `json:"description"`
	Condition      Condition `json:"condition"`
	Status         string    `json:"status"`
	CreatedAt      int64     `json:"createdat"`
	RevealedAt     int64     `json:"revealedat,omitempty"`
	RevealedSecret string    `json:"revealedsecret,omitempty"`
	Proof          string    `json:"proof,omitempty"`
	Automatic      bool      `json:"automatic,omitempty"`
}

// CommitmentsReply lists commitments, newest first.
type CommitmentsReply struct {
	Commitments []Commitment `json:"commitments"`
}

// Price is a single oracle sample.
type Price struct {
	Asset      string `json:"asset"`
	Price      string `json:"price"`
	ObservedAt int64  `json:"observedat"`
}

// PricesReply lists the latest oracle prices sorted by asset.
type PricesReply struct {
	Prices []Price `json:"prices"`
}

// SubmissionForm are the answers of a wellness assessment.
type SubmissionForm struct {
	Age                    string   `json:"age"`
	CurrentMood            string   `json:"currentMood"`
	SleepQuality           string   `json:"sleepQuality"`
	StressLevel            string   `json:"stressLevel"`
	ExerciseFrequency      string   `json:"exerciseFrequency"`
	DietPreference         string   `json:"dietPreference"`
	SelfHarm               string   `json:"selfHarm,omitempty"`
	SelfHarmRecent         string   `json:"selfHarmRecent,omitempty"`
	Masturbation           string   `json:"masturbation,omitempty"`
	MasturbationFeelings   string   `json:"masturbationFeelings,omitempty"`
	DrugUse                []string `json:"drugUse,omitempty"`
	SexualPartners         string   `json:"sexualPartners,omitempty"`
	SexualPartnersFeelings string   `json:"sexualPartnersFeelings,omitempty"`
	AbuseHistory           string   `json:"abuseHistory,omitempty"`
	CrimeHistory           string   `json:"crimeHistory,omitempty"`
	CrimeCaught            string   `json:"crimeCaught,omitempty"`
}

// Submission uploads a wellness assessment.
type Submission struct {
	ID            string         `json:"id"`
	WalletAddress string         `json:"walletaddress"`
	Form          SubmissionForm `json:"form"`
}

// SubmissionReply returns the content identifier of the uploaded document.
type SubmissionReply struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submissionid"`
	CID          string `json:"cid"`
	URL          string `json:"url"`
}

// SubmissionVerify reports the outcome of the external identity check for
// an uploaded document.
type SubmissionVerify struct {
	ID       string `json:"id"`
	CID      string `json:"cid"`
	Verified bool   `json:"verified"`
}

// SubmissionVerifyReply returns the registration transaction.
type SubmissionVerifyReply struct {
	ID           string `json:"id"`
	CID          string `json:"cid"`
	TxHash       string `json:"txhash"`
	RegisteredAt int64  `json:"registeredat"`
}

// VerifiedSubmission is a registered submission.  Form is absent when the
// document could not be fetched.
type VerifiedSubmission struct {
	ID          string          `json:"id"`
	CID         string          `json:"cid"`
	URL         string          `json:"url"`
	TxHash      string          `json:"txhash"`
	VerifiedAt  int64           `json:"verifiedat"`
	Description string          `json:"description"`
	Form        *SubmissionForm `json:"form,omitempty"`

	// Registration transaction state, reported when the daemon runs
	// with a wallet.
	Confirmations int32 `json:"confirmations,omitempty"`
	BlockHeight   int32 `json:"blockheight,omitempty"`
}

// SubmissionsReply lists registered submissions, newest first.
type SubmissionsReply struct {
	Submissions []VerifiedSubmission `json:"submissions"`
}

// Event is sent on the events stream.  Prices is set for EventPrices and
// Commitment for EventReveal.
type Event struct {
	Type       string      `json:"type"`
	Prices     []Price     `json:"prices,omitempty"`
	Commitment *Commitment `json:"commitment,omitempty"`
}
