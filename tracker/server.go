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
package tracker

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/swarmpeer/swarm/core"
	"github.com/swarmpeer/swarm/swarmlog"
)

// announceInterval is the value advertised to clients in the "interval"
// field; this core's peers ignore it and always announce on their own
// fixed schedule, but a conformant tracker must still supply it.
const announceInterval = 10

// announceResponse mirrors trackerclient.AnnounceResponse; duplicated
// locally so the tracker package has no dependency on the client package.
type announceResponse struct {
	Interval int             `json:"interval"`
	Peers    []core.PeerInfo `json:"peers"`
}

// Server is the reference HTTP tracker.
type Server struct {
	store Store
}

// NewServer constructs a Server backed by store.
func NewServer(store Store) *Server {
	return &Server{store: store}
}

// Handler returns the mux.Router serving the tracker's announce endpoint.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/announce", s.handleAnnounce).Methods(http.MethodGet)
	return r
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	infoHash, err := parseInfoHash(q.Get("info_hash"))
	if err != nil {
		http.Error(w, "invalid info_hash: "+err.Error(), http.StatusBadRequest)
		return
	}
	peerID, err := parsePeerID(q.Get("peer_id"))
	if err != nil {
		http.Error(w, "invalid peer_id: "+err.Error(), http.StatusBadRequest)
		return
	}
	port, err := strconv.Atoi(q.Get("port"))
	if err != nil {
		http.Error(w, "invalid port: "+err.Error(), http.StatusBadRequest)
		return
	}

	ip := clientIP(r)
	event := q.Get("event")

	if event == "stopped" {
		if err := s.store.Remove(infoHash, peerID); err != nil {
			swarmlog.Errorf("remove peer %s: %s", peerID, err)
		}
	} else {
		peer := core.PeerInfo{PeerID: peerID, IP: ip, Port: port}
		if err := s.store.Update(infoHash, peer); err != nil {
			swarmlog.Errorf("update peer %s: %s", peerID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	peers, err := s.store.GetPeers(infoHash)
	if err != nil {
		swarmlog.Errorf("get peers for %s: %s", infoHash, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := announceResponse{Interval: announceInterval, Peers: peers}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		swarmlog.Errorf("encode announce response: %s", err)
	}
}

func parseInfoHash(raw string) (core.InfoHash, error) {
	var h core.InfoHash
	if len(raw) != 20 {
		return h, fmt.Errorf("info_hash must decode to 20 bytes, got %d", len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func parsePeerID(raw string) (core.PeerID, error) {
	var p core.PeerID
	if len(raw) != 20 {
		return p, fmt.Errorf("peer_id must decode to 20 bytes, got %d", len(raw))
	}
	copy(p[:], raw)
	return p, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
