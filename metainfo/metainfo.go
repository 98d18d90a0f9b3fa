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

// Package metainfo decodes and creates .torrent metafiles: the bencoded
// dictionary that supplies a core.Torrent's piece hashes, piece length,
// total length, file name, and tracker URL.
package metainfo

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/jackpal/bencode-go"

	"github.com/swarmpeer/swarm/core"
)

// rawInfo is the bencoded "info" dictionary.
type rawInfo struct {
	Name        string `bencode:"name"`
	Length      int64  `bencode:"length"`
	PieceLength int64  `bencode:"piece length"`
	Pieces      string `bencode:"pieces"`
}

// rawMetaInfo is the top-level bencoded dictionary written to .torrent files.
type rawMetaInfo struct {
	Announce string  `bencode:"announce"`
	Info     rawInfo `bencode:"info"`
}

// Decode parses a .torrent file from r into a core.Torrent.
func Decode(r io.Reader) (*core.Torrent, error) {
	var raw rawMetaInfo
	if err := bencode.Unmarshal(r, &raw); err != nil {
		return nil, fmt.Errorf("bencode decode: %s", err)
	}
	if len(raw.Info.Pieces)%sha1.Size != 0 {
		return nil, fmt.Errorf("metainfo: pieces field has invalid length %d", len(raw.Info.Pieces))
	}
	n := len(raw.Info.Pieces) / sha1.Size
	hashes := make([]core.PieceHash, n)
	for i := 0; i < n; i++ {
		copy(hashes[i][:], raw.Info.Pieces[i*sha1.Size:(i+1)*sha1.Size])
	}
	return core.NewTorrent(raw.Info.Name, raw.Info.Length, raw.Info.PieceLength, hashes, raw.Announce)
}

// DecodeFile parses the .torrent file at path.
func DecodeFile(path string) (*core.Torrent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open torrent file: %s", err)
	}
	defer f.Close()
	return Decode(f)
}

// Encode writes t as a .torrent metafile to w.
func Encode(w io.Writer, t *core.Torrent) error {
	pieces := make([]byte, 0, len(t.PieceHashes)*sha1.Size)
	for _, h := range t.PieceHashes {
		pieces = append(pieces, h[:]...)
	}
	raw := rawMetaInfo{
		Announce: t.TrackerURL,
		Info: rawInfo{
			Name:        t.Name,
			Length:      t.Length,
			PieceLength: t.PieceLength,
			Pieces:      string(pieces),
		},
	}
	if err := bencode.Marshal(w, raw); err != nil {
		return fmt.Errorf("bencode encode: %s", err)
	}
	return nil
}

// Create builds a Torrent descriptor for the file at srcPath, hashing every
// piece, and writes the resulting .torrent metafile to dstPath.
func Create(srcPath, trackerURL string, pieceLength int64, dstPath string) (*core.Torrent, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open source file: %s", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat source file: %s", err)
	}
	length := info.Size()

	numPieces := int(length / pieceLength)
	if length%pieceLength != 0 {
		numPieces++
	}
	hashes := make([]core.PieceHash, numPieces)
	buf := make([]byte, pieceLength)
	for i := 0; i < numPieces; i++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, fmt.Errorf("read piece %d: %s", i, err)
		}
		hashes[i] = sha1.Sum(buf[:n])
	}

	t, err := core.NewTorrent(info.Name(), length, pieceLength, hashes, trackerURL)
	if err != nil {
		return nil, fmt.Errorf("build torrent: %s", err)
	}

	var out bytes.Buffer
	if err := Encode(&out, t); err != nil {
		return nil, err
	}
	if err := ioutil.WriteFile(dstPath, out.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("write metafile: %s", err)
	}
	return t, nil
}
