// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package trackerclient implements the HTTP/JSON announce client the Swarm
// Coordinator uses to discover peers.
package trackerclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/swarmpeer/swarm/core"
)

// Event is the announce event query parameter.
type Event string

// Announce events.
const (
	EventNone      Event = ""
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
	EventStopped   Event = "stopped"
)

// AnnounceRequest carries everything needed to build an announce query.
type AnnounceRequest struct {
	TrackerURL string
	InfoHash   core.InfoHash
	PeerID     core.PeerID
	Port       int
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
}

// AnnounceResponse is the tracker's JSON response.
type AnnounceResponse struct {
	Interval int             `json:"interval"`
	Peers    []core.PeerInfo `json:"peers"`
}

// Client announces to a tracker and retrieves peer lists.
type Client interface {
	Announce(req AnnounceRequest) (*AnnounceResponse, error)
}

// HTTPClient is the default Client, issuing a GET request per spec.md §6's
// tracker HTTP interface and decoding a JSON response.
type HTTPClient struct {
	httpClient *http.Client
	maxRetries uint64
}

// Config controls HTTPClient timeouts and retry behavior.
type Config struct {
	RequestTimeout time.Duration
	MaxRetries     uint64
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// NewHTTPClient constructs an HTTPClient.
func NewHTTPClient(config Config) *HTTPClient {
	config.applyDefaults()
	return &HTTPClient{
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		maxRetries: config.MaxRetries,
	}
}

// Announce performs the GET request described by req, retrying transient
// failures with exponential backoff.
func (c *HTTPClient) Announce(req AnnounceRequest) (*AnnounceResponse, error) {
	u, err := buildURL(req)
	if err != nil {
		return nil, fmt.Errorf("build announce url: %s", err)
	}

	var resp *AnnounceResponse
	b := backoff.NewExponentialBackOff()
	policy := backoff.WithMaxRetries(b, c.maxRetries)

	operation := func() error {
		r, err := c.get(u)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) get(u string) (*AnnounceResponse, error) {
	httpResp, err := c.httpClient.Get(u)
	if err != nil {
		return nil, fmt.Errorf("get: %s", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker returned status %d", httpResp.StatusCode)
	}

	var resp AnnounceResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %s", err)
	}
	return &resp, nil
}

func buildURL(req AnnounceRequest) (string, error) {
	base, err := url.Parse(req.TrackerURL)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("info_hash", string(req.InfoHash.Bytes()))
	q.Set("peer_id", string(req.PeerID[:]))
	q.Set("port", strconv.Itoa(req.Port))
	q.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	q.Set("left", strconv.FormatInt(req.Left, 10))
	if req.Event != EventNone {
		q.Set("event", string(req.Event))
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}
