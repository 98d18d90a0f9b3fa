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
	"sync"
	"time"

	"github.com/andres-erbsen/clock"

	"github.com/swarmpeer/swarm/core"
)

type peerEntry struct {
	peer     core.PeerInfo
	lastSeen time.Time
}

// LocalStore is an in-process Store backed by a map, suitable for a
// single-instance tracker deployment.
type LocalStore struct {
	mu    sync.Mutex
	clk   clock.Clock
	peers map[core.InfoHash]map[core.PeerID]peerEntry
}

// NewLocalStore constructs an empty LocalStore.
func NewLocalStore(clk clock.Clock) *LocalStore {
	if clk == nil {
		clk = clock.New()
	}
	return &LocalStore{
		clk:   clk,
		peers: make(map[core.InfoHash]map[core.PeerID]peerEntry),
	}
}

// Update implements Store.
func (s *LocalStore) Update(infoHash core.InfoHash, peer core.PeerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peers[infoHash] == nil {
		s.peers[infoHash] = make(map[core.PeerID]peerEntry)
	}
	s.peers[infoHash][peer.PeerID] = peerEntry{peer: peer, lastSeen: s.clk.Now()}
	return nil
}

// Remove implements Store.
func (s *LocalStore) Remove(infoHash core.InfoHash, peerID core.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers[infoHash], peerID)
	return nil
}

// GetPeers implements Store, dropping any peer whose last announce is
// older than peerTTL.
func (s *LocalStore) GetPeers(infoHash core.InfoHash) ([]core.PeerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	var out []core.PeerInfo
	for id, e := range s.peers[infoHash] {
		if now.Sub(e.lastSeen) > time.Duration(peerTTL)*time.Second {
			delete(s.peers[infoHash], id)
			continue
		}
		out = append(out, e.peer)
	}
	return out, nil
}
