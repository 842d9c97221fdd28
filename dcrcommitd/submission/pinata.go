// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultPinataURL is the Pinata API endpoint.
	DefaultPinataURL = "https://api.pinata.cloud"

	// DefaultGateway is the IPFS gateway used to link and fetch documents.
	DefaultGateway = "https://gateway.pinata.cloud"

	pinJSONRoute = "/pinning/pinJSONToIPFS"

	requestTimeout = 30 * time.Second
)

// Uploader stores a submission document and returns its content identifier.
type Uploader interface {
	Upload(ctx context.Context, s Submission) (string, error)
}

// Fetcher retrieves a previously uploaded document.
type Fetcher interface {
	Fetch(ctx context.Context, cid string) (*Submission, error)
}

// GatewayURL returns the public link of cid on the default gateway.
func GatewayURL(cid string) string {
	return gatewayURL(DefaultGateway, cid)
}

func gatewayURL(gateway, cid string) string {
	return strings.TrimRight(gateway, "/") + "/ipfs/" + cid
}

type pinataMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues"`
}

type pinJSONRequest struct {
	PinataContent  Submission     `json:"pinataContent"`
	PinataMetadata pinataMetadata `json:"pinataMetadata"`
}

// PinResult is the reply of pinJSONToIPFS.
type PinResult struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

var (
	_ Uploader = (*Pinata)(nil)
	_ Fetcher  = (*Pinata)(nil)
)

// Pinata pins documents through the Pinata API and fetches them back from an
// IPFS gateway.
type Pinata struct {
	apiURL  string
	gateway string
	jwt     string
	client  *http.Client
}

// NewPinata returns a Pinata client.  Empty apiURL and gateway select the
// defaults.
func NewPinata(apiURL, gateway, jwt string) *Pinata {
	if apiURL == "" {
		apiURL = DefaultPinataURL
	}
	if gateway == "" {
		gateway = DefaultGateway
	}
	return &Pinata{
		apiURL:  strings.TrimRight(apiURL, "/"),
		gateway: gateway,
		jwt:     jwt,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// URL returns the gateway link of cid.
func (p *Pinata) URL(cid string) string {
	return gatewayURL(p.gateway, cid)
}

func readError(r *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1024))
	return errors.Errorf("%v %s", r.StatusCode, bytes.TrimSpace(body))
}

// Upload pins s and returns its IPFS hash.
func (p *Pinata) Upload(ctx context.Context, s Submission) (string, error) {
	req := pinJSONRequest{
		PinataContent: s,
		PinataMetadata: pinataMetadata{
			Name: "Wellness Assessment - " + s.Metadata.SubmissionID,
			KeyValues: map[string]string{
				"type":      "wellness-assessment",
				"version":   s.Metadata.Version,
				"anonymous": strconv.FormatBool(s.Metadata.Anonymous),
				"timestamp": s.Metadata.Timestamp,
			},
		},
	}
	b, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "IPFS upload failed")
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiURL+pinJSONRoute, bytes.NewReader(b))
	if err != nil {
		return "", errors.Wrap(err, "IPFS upload failed")
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Authorization", "Bearer "+p.jwt)

	r, err := p.client.Do(hr)
	if err != nil {
		return "", errors.Wrap(err, "IPFS upload failed")
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		return "", errors.Wrap(readError(r), "IPFS upload failed")
	}

	var pr PinResult
	if err := json.NewDecoder(r.Body).Decode(&pr); err != nil {
		return "", errors.Wrap(err, "IPFS upload failed")
	}
	if pr.IpfsHash == "" {
		return "", errors.New("IPFS upload failed: empty hash")
	}

	log.Infof("Pinned %v: %v (%v bytes)", s.Metadata.SubmissionID,
		pr.IpfsHash, pr.PinSize)

	return pr.IpfsHash, nil
}

// Fetch retrieves the document identified by cid from the gateway.
func (p *Pinata) Fetch(ctx context.Context, cid string) (*Submission, error) {
	hr, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(cid),
		nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %v", cid)
	}
	r, err := p.client.Do(hr)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %v", cid)
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(readError(r), "fetch %v", cid)
	}

	var s Submission
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "decode %v", cid)
	}
	return &s, nil
}
