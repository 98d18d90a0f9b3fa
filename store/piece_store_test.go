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
package store

import (
	"crypto/sha1"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/swarmpeer/swarm/core"
)

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

func TestWritePieceAcceptsValidData(t *testing.T) {
	dir, err := ioutil.TempDir("", "piecestore")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	tor := fixtureTorrent(t)
	s, err := New(tor, filepath.Join(dir, "test.txt"), tally.NoopScope)
	require.NoError(t, err)
	defer s.Close()

	accepted, err := s.WritePiece(0, []byte("AAAA"))
	require.NoError(t, err)
	require.True(t, accepted)

	b, ok, err := s.ReadPiece(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("AAAA"), b)
}

func TestWritePieceRejectsHashMismatch(t *testing.T) {
	dir, err := ioutil.TempDir("", "piecestore")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	tor := fixtureTorrent(t)
	s, err := New(tor, filepath.Join(dir, "test.txt"), tally.NoopScope)
	require.NoError(t, err)
	defer s.Close()

	accepted, err := s.WritePiece(0, []byte("ZZZZ"))
	require.NoError(t, err)
	require.False(t, accepted)

	_, ok, err := s.ReadPiece(0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWritePieceIdempotent(t *testing.T) {
	dir, err := ioutil.TempDir("", "piecestore")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	tor := fixtureTorrent(t)
	s, err := New(tor, filepath.Join(dir, "test.txt"), tally.NoopScope)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.WritePiece(0, []byte("AAAA"))
	require.NoError(t, err)
	accepted, err := s.WritePiece(0, []byte("AAAA"))
	require.NoError(t, err)
	require.True(t, accepted)
}

func TestConstructVerifiesExistingFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "piecestore")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "test.txt")
	content := []byte("AAAABBBBXC") // piece 2 ("XC") corrupted, want "CC"
	require.NoError(t, ioutil.WriteFile(path, content, 0644))

	tor := fixtureTorrent(t)
	s, err := New(tor, path, tally.NoopScope)
	require.NoError(t, err)
	defer s.Close()

	have := s.SnapshotHave()
	require.True(t, have.Test(0))
	require.True(t, have.Test(1))
	require.False(t, have.Test(2))
	require.False(t, s.IsComplete())
}

func TestIsCompleteAfterAllPieces(t *testing.T) {
	dir, err := ioutil.TempDir("", "piecestore")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	tor := fixtureTorrent(t)
	s, err := New(tor, filepath.Join(dir, "test.txt"), tally.NoopScope)
	require.NoError(t, err)
	defer s.Close()

	for i, b := range [][]byte{[]byte("AAAA"), []byte("BBBB"), []byte("CC")} {
		accepted, err := s.WritePiece(i, b)
		require.NoError(t, err)
		require.True(t, accepted)
	}
	require.True(t, s.IsComplete())
}
