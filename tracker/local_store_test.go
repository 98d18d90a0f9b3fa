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
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"

	"github.com/swarmpeer/swarm/core"
)

func TestLocalStoreUpdateAndGetPeers(t *testing.T) {
	s := NewLocalStore(clock.New())
	infoHash := core.NewInfoHashFromBytes([]byte("torrent-a"))
	peer := core.PeerInfo{PeerID: core.PeerID{1, 2, 3}, IP: "10.0.0.1", Port: 6881}

	require.NoError(t, s.Update(infoHash, peer))

	peers, err := s.GetPeers(infoHash)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, peer, peers[0])
}

func TestLocalStoreExpiresStalePeers(t *testing.T) {
	clk := clock.NewMock()
	s := NewLocalStore(clk)
	infoHash := core.NewInfoHashFromBytes([]byte("torrent-c"))
	peer := core.PeerInfo{PeerID: core.PeerID{7, 8, 9}, IP: "10.0.0.3", Port: 6883}

	require.NoError(t, s.Update(infoHash, peer))
	clk.Add(31 * time.Minute)

	peers, err := s.GetPeers(infoHash)
	require.NoError(t, err)
	require.Empty(t, peers)
}

func TestLocalStoreRemove(t *testing.T) {
	s := NewLocalStore(clock.New())
	infoHash := core.NewInfoHashFromBytes([]byte("torrent-d"))
	peer := core.PeerInfo{PeerID: core.PeerID{1, 1, 1}, IP: "10.0.0.4", Port: 6884}

	require.NoError(t, s.Update(infoHash, peer))
	require.NoError(t, s.Remove(infoHash, peer.PeerID))

	peers, err := s.GetPeers(infoHash)
	require.NoError(t, err)
	require.Empty(t, peers)
}
