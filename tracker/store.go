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

// Package tracker implements the reference HTTP tracker: a directory
// service that, per info_hash, maintains the set of recently active peers
// and answers announce requests with a JSON peer list.
package tracker

import (
	"github.com/swarmpeer/swarm/core"
)

// peerTTL is how long a peer is retained after its last announce before
// it is considered stale and dropped from the response set.
const peerTTL = 30 * 60 // seconds, kept as an int for redis EXPIRE calls.

// Store tracks, per info_hash, the set of recently announced peers. It is
// the persistence seam between the HTTP handler and an in-process map or a
// Redis-backed multi-process deployment, mirroring the teacher's
// peerstore.Store split.
type Store interface {
	// Update records that peer is active for infoHash, refreshing its TTL.
	Update(infoHash core.InfoHash, peer core.PeerInfo) error

	// Remove drops peer from infoHash's set, e.g. on a "stopped" event.
	Remove(infoHash core.InfoHash, peerID core.PeerID) error

	// GetPeers returns the currently active peers for infoHash.
	GetPeers(infoHash core.InfoHash) ([]core.PeerInfo, error)
}
