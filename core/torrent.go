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
package core

import (
	"crypto/sha1"
	"errors"
	"fmt"
)

// PieceHash is the SHA-1 hash of a single piece's content.
type PieceHash [sha1.Size]byte

// Torrent is the descriptor shared by every peer in a swarm: the single-file
// layout, piece boundaries, and the per-piece hashes used to verify data
// received over the wire. It corresponds to the decoded contents of a
// .torrent metainfo file.
type Torrent struct {
	InfoHash    InfoHash
	Name        string
	Length      int64
	PieceLength int64
	PieceHashes []PieceHash
	TrackerURL  string
}

// NewTorrent builds a Torrent from its fields, validating that the piece
// hashes are consistent with length and piece length.
func NewTorrent(
	name string,
	length int64,
	pieceLength int64,
	pieceHashes []PieceHash,
	trackerURL string) (*Torrent, error) {

	if length <= 0 {
		return nil, errors.New("length must be positive")
	}
	if pieceLength <= 0 {
		return nil, errors.New("piece length must be positive")
	}
	want := numPieces(length, pieceLength)
	if len(pieceHashes) != want {
		return nil, fmt.Errorf(
			"piece hash count mismatch: got %d, want %d", len(pieceHashes), want)
	}

	t := &Torrent{
		Name:        name,
		Length:      length,
		PieceLength: pieceLength,
		PieceHashes: pieceHashes,
		TrackerURL:  trackerURL,
	}
	t.InfoHash = t.computeInfoHash()
	return t, nil
}

func numPieces(length, pieceLength int64) int {
	n := length / pieceLength
	if length%pieceLength != 0 {
		n++
	}
	return int(n)
}

// NumPieces returns the total number of pieces in t.
func (t *Torrent) NumPieces() int {
	return len(t.PieceHashes)
}

// GetPieceLength returns the length in bytes of the piece at index i. Every
// piece is PieceLength bytes except possibly the last, which is whatever
// remains of Length.
func (t *Torrent) GetPieceLength(i int) int64 {
	if i < 0 || i >= t.NumPieces() {
		return 0
	}
	if i == t.NumPieces()-1 {
		rem := t.Length - int64(i)*t.PieceLength
		return rem
	}
	return t.PieceLength
}

// PieceOffset returns the byte offset of piece i within the file.
func (t *Torrent) PieceOffset(i int) int64 {
	return int64(i) * t.PieceLength
}

// computeInfoHash derives a 20-byte info hash deterministically from the
// torrent's layout and piece hashes, mirroring the convention that info_hash
// is the SHA-1 of the metainfo's "info" dictionary.
func (t *Torrent) computeInfoHash() InfoHash {
	var buf []byte
	buf = append(buf, []byte(fmt.Sprintf("%s\x00%d\x00%d\x00", t.Name, t.Length, t.PieceLength))...)
	for _, ph := range t.PieceHashes {
		buf = append(buf, ph[:]...)
	}
	return NewInfoHashFromBytes(buf)
}
