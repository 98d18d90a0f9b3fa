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
package trackerclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swarmpeer/swarm/core"
)

func TestAnnounceSendsExpectedParamsAndParsesResponse(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		resp := AnnounceResponse{
			Interval: 10,
			Peers: []core.PeerInfo{
				{PeerID: core.PeerID{1, 2, 3}, IP: "10.0.0.1", Port: 6881},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{})
	req := AnnounceRequest{
		TrackerURL: srv.URL + "/announce",
		InfoHash:   core.NewInfoHashFromBytes([]byte("x")),
		PeerID:     core.PeerID{9},
		Port:       6881,
		Event:      EventStarted,
	}

	resp, err := c.Announce(req)
	require.NoError(t, err)
	require.Equal(t, 10, resp.Interval)
	require.Len(t, resp.Peers, 1)
	require.Equal(t, "10.0.0.1", resp.Peers[0].IP)
	require.Contains(t, gotQuery, "event=started")
	require.Contains(t, gotQuery, "port=6881")
}

func TestAnnounceReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{MaxRetries: 1})
	req := AnnounceRequest{
		TrackerURL: srv.URL + "/announce",
		InfoHash:   core.NewInfoHashFromBytes([]byte("x")),
		PeerID:     core.PeerID{9},
		Port:       6881,
	}

	_, err := c.Announce(req)
	require.Error(t, err)
}
