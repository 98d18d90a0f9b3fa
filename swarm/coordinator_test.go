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
package swarm

import (
	"crypto/sha1"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/swarmpeer/swarm/core"
	"github.com/swarmpeer/swarm/store"
	"github.com/swarmpeer/swarm/trackerclient"
)

type fakeTrackerClient struct {
	announces []trackerclient.AnnounceRequest
}

func (f *fakeTrackerClient) Announce(req trackerclient.AnnounceRequest) (*trackerclient.AnnounceResponse, error) {
	f.announces = append(f.announces, req)
	return &trackerclient.AnnounceResponse{Interval: 10}, nil
}

func fixtureTorrent(t *testing.T) *core.Torrent {
	hashes := []core.PieceHash{
		core.PieceHash(sha1.Sum([]byte("AAAA"))),
		core.PieceHash(sha1.Sum([]byte("BBBB"))),
		core.PieceHash(sha1.Sum([]byte("CC"))),
	}
	tor, err := core.NewTorrent("test.txt", 10, 4, hashes, "http://tracker.example/announce")
	require.NoError(t, err)
	return tor
}

func TestIsSelfMatchesOwnPort(t *testing.T) {
	dir := t.TempDir()
	tor := fixtureTorrent(t)
	ps, err := store.New(tor, filepath.Join(dir, "test.txt"), tally.NoopScope)
	require.NoError(t, err)
	defer ps.Close()

	pctx := core.PeerContext{IP: "10.0.0.5", Port: 0, PeerID: core.PeerID{1}}
	c, err := New(Config{}, pctx, tor, ps, &fakeTrackerClient{}, tally.NoopScope)
	require.NoError(t, err)
	defer c.listener.Close()

	require.True(t, c.isSelf("10.0.0.5", c.pctx.Port))
	require.False(t, c.isSelf("10.0.0.6", c.pctx.Port))
	require.False(t, c.isSelf("10.0.0.5", c.pctx.Port+1))
}

func TestOnPieceAcceptedWithNoSessionsIsNoop(t *testing.T) {
	dir := t.TempDir()
	tor := fixtureTorrent(t)
	ps, err := store.New(tor, filepath.Join(dir, "test.txt"), tally.NoopScope)
	require.NoError(t, err)
	defer ps.Close()

	pctx := core.PeerContext{IP: "127.0.0.1", Port: 0, PeerID: core.PeerID{1}}
	c, err := New(Config{}, pctx, tor, ps, &fakeTrackerClient{}, tally.NoopScope)
	require.NoError(t, err)
	defer c.listener.Close()

	c.OnPieceAccepted(0)
}
