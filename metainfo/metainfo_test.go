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
package metainfo

import (
	"bytes"
	"crypto/sha1"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swarmpeer/swarm/core"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	hashes := []core.PieceHash{
		core.PieceHash(sha1.Sum([]byte("AAAA"))),
		core.PieceHash(sha1.Sum([]byte("BBBB"))),
		core.PieceHash(sha1.Sum([]byte("CC"))),
	}
	want, err := core.NewTorrent("test.txt", 10, 4, hashes, "http://tracker.example/announce")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, want))

	got, err := Decode(&buf)
	require.NoError(t, err)

	require.Equal(t, want.Name, got.Name)
	require.Equal(t, want.Length, got.Length)
	require.Equal(t, want.PieceLength, got.PieceLength)
	require.Equal(t, want.PieceHashes, got.PieceHashes)
	require.Equal(t, want.TrackerURL, got.TrackerURL)
	require.Equal(t, want.InfoHash, got.InfoHash)
}

func TestCreateHashesFileIntoPieces(t *testing.T) {
	dir := t.TempDir()
	srcPath := dir + "/data.bin"
	content := []byte("AAAABBBBCC")
	require.NoError(t, ioutil.WriteFile(srcPath, content, 0644))

	dstPath := srcPath + ".torrent"
	tor, err := Create(srcPath, "http://tracker.example/announce", 4, dstPath)
	require.NoError(t, err)

	require.Equal(t, int64(10), tor.Length)
	require.Equal(t, 3, tor.NumPieces())
	require.Equal(t, core.PieceHash(sha1.Sum([]byte("AAAA"))), tor.PieceHashes[0])
	require.Equal(t, core.PieceHash(sha1.Sum([]byte("BBBB"))), tor.PieceHashes[1])
	require.Equal(t, core.PieceHash(sha1.Sum([]byte("CC"))), tor.PieceHashes[2])

	reloaded, err := DecodeFile(dstPath)
	require.NoError(t, err)
	require.Equal(t, tor.InfoHash, reloaded.InfoHash)
}
