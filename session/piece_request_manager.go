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
package session

import (
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
)

// MaxPipelined is the maximum number of outstanding requests a session may
// have in flight at once.
const MaxPipelined = 5

// RequestTimeout is how long a request may remain outstanding before it is
// swept and becomes eligible to re-request.
const RequestTimeout = 20 * time.Second

// PieceRequestManager tracks the pending set described by spec.md's Peer
// Session state: a mapping from piece index to issue-timestamp. It is
// grounded on the teacher's piecerequest.Manager, simplified down to a
// single global policy (lowest-index-first, fixed pipeline depth, fixed
// timeout) since per-peer quotas and rarest-first are explicit Non-goals.
type PieceRequestManager struct {
	mu      sync.Mutex
	clk     clock.Clock
	pending map[int]time.Time
}

// NewPieceRequestManager constructs an empty manager using clk as its time
// source (injectable for deterministic tests).
func NewPieceRequestManager(clk clock.Clock) *PieceRequestManager {
	return &PieceRequestManager{
		clk:     clk,
		pending: make(map[int]time.Time),
	}
}

// Len returns the number of outstanding requests.
func (m *PieceRequestManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Has returns whether index has an outstanding request.
func (m *PieceRequestManager) Has(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[index]
	return ok
}

// Add records a new outstanding request for index, issued now.
func (m *PieceRequestManager) Add(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[index] = m.clk.Now()
}

// Remove clears index from the pending set, e.g. on piece arrival.
func (m *PieceRequestManager) Remove(index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, index)
}

// Clear drops every outstanding request, e.g. on choke.
func (m *PieceRequestManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[int]time.Time)
}

// SweepExpired removes every request older than RequestTimeout, making
// those indices eligible to request again.
func (m *PieceRequestManager) SweepExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clk.Now()
	for i, t := range m.pending {
		if now.Sub(t) > RequestTimeout {
			delete(m.pending, i)
		}
	}
}

// NextRequest finds the lowest-indexed piece that is not yet had, is
// advertised by the peer, and is not already pending, respecting
// MaxPipelined. Returns ok=false if no such piece exists or the pipeline is
// full.
func (m *PieceRequestManager) NextRequest(numPieces int, have func(int) bool, peerHave func(int) bool) (index int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) >= MaxPipelined {
		return 0, false
	}
	for i := 0; i < numPieces; i++ {
		if have(i) {
			continue
		}
		if !peerHave(i) {
			continue
		}
		if _, pending := m.pending[i]; pending {
			continue
		}
		return i, true
	}
	return 0, false
}
