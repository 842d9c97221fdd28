// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/decred/dcrcommit/util"
)

const clientID = "dcrcommit cli"

// client talks to dcrcommitd.
type client struct {
	host  string
	http  *http.Client
	debug io.Writer // Receives request bodies when set
	raw   io.Writer // Receives verbatim replies when set
}

func newClient(host string, skipVerify bool) *client {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: skipVerify,
	}
	tr := &http.Transport{
		TLSClientConfig: tlsConfig,
	}
	return &client{
		host: host,
		http: &http.Client{
			Transport: tr,
			Timeout:   time.Minute,
		},
	}
}

// do sends the request and decodes the reply into reply.
func (c *client) do(method, route string, request, reply interface{}) error {
	var body io.Reader
	if request != nil {
		b, err := json.Marshal(request)
		if err != nil {
			return err
		}
		if c.debug != nil {
			fmt.Fprintln(c.debug, string(b))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.host+route, body)
	if err != nil {
		return err
	}
	if request != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	r, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if c.raw != nil {
		fmt.Fprintln(c.raw, string(b))
	}
	if err := json.Unmarshal(b, reply); err != nil {
		return fmt.Errorf("could not decode reply: %v", err)
	}
	return nil
}

func (c *client) post(route string, request, reply interface{}) error {
	return c.do(http.MethodPost, route, request, reply)
}

func (c *client) get(route string, reply interface{}) error {
	return c.do(http.MethodGet, route, nil, reply)
}
