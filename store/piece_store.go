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

// Package store implements the on-disk piece store: a single file plus an
// in-memory completion bitmap, serialized by one coarse mutex. Correctness,
// not throughput, governs this component -- disk I/O is never the
// bottleneck in a swarm of this scale.
package store

import (
	"crypto/sha1"
	"fmt"
	"os"
	"sync"

	"github.com/uber-go/tally"
	"github.com/willf/bitset"

	"github.com/swarmpeer/swarm/core"
	"github.com/swarmpeer/swarm/swarmlog"
)

// PieceStore owns the on-disk file and completion bitmap for a single
// torrent. All operations are serialized by mu, which covers both the
// bitmap and the underlying file descriptor.
type PieceStore struct {
	mu      sync.Mutex
	torrent *core.Torrent
	file    *os.File
	have    *bitset.BitSet
	stats   tally.Scope
}

// New constructs a PieceStore for t backed by the file at path. If the file
// already exists with the correct size, every piece is hashed and have[i]
// is set for each that verifies; any mismatching piece is reported but left
// unset so it is re-requested from the swarm. If the file is missing or the
// wrong size, it is created/truncated to t.Length zero bytes.
func New(t *core.Torrent, path string, stats tally.Scope) (*PieceStore, error) {
	if stats == nil {
		stats = tally.NoopScope
	}
	s := &PieceStore{
		torrent: t,
		have:    bitset.New(uint(t.NumPieces())),
		stats:   stats,
	}

	f, needsInit, err := openOrCreate(path, t.Length)
	if err != nil {
		return nil, fmt.Errorf("open piece file: %s", err)
	}
	s.file = f

	if !needsInit {
		if err := s.verifyExisting(); err != nil {
			f.Close()
			return nil, fmt.Errorf("verify existing file: %s", err)
		}
	}
	return s, nil
}

func openOrCreate(path string, length int64) (f *os.File, needsInit bool, err error) {
	info, statErr := os.Stat(path)
	if statErr == nil && info.Size() == length {
		f, err = os.OpenFile(path, os.O_RDWR, 0644)
		return f, false, err
	}
	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, true, err
	}
	if err := f.Truncate(length); err != nil {
		f.Close()
		return nil, true, err
	}
	return f, true, nil
}

func (s *PieceStore) verifyExisting() error {
	for i := 0; i < s.torrent.NumPieces(); i++ {
		buf := make([]byte, s.torrent.GetPieceLength(i))
		if _, err := s.file.ReadAt(buf, s.torrent.PieceOffset(i)); err != nil {
			return fmt.Errorf("read piece %d: %s", i, err)
		}
		if sha1.Sum(buf) == s.torrent.PieceHashes[i] {
			s.have.Set(uint(i))
		} else {
			swarmlog.Infof("piece %d failed verification on startup, will re-download", i)
		}
	}
	return nil
}

// WritePiece hash-verifies b against the expected hash for index, and if it
// matches, writes it to disk and marks have[index] true. Returns whether
// the piece was accepted. A hash mismatch is logged and leaves disk and
// bitmap unchanged. If b verifies and the piece was already have, this is a
// no-op that returns true.
func (s *PieceStore) WritePiece(index int, b []byte) (accepted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= s.torrent.NumPieces() {
		return false, fmt.Errorf("piece index %d out of range", index)
	}
	if int64(len(b)) != s.torrent.GetPieceLength(index) {
		s.stats.Counter("pieces_rejected").Inc(1)
		return false, nil
	}
	if sha1.Sum(b) != s.torrent.PieceHashes[index] {
		s.stats.Counter("pieces_rejected").Inc(1)
		swarmlog.Infof("piece %d failed hash verification, rejected", index)
		return false, nil
	}
	if s.have.Test(uint(index)) {
		return true, nil
	}

	if _, err := s.file.WriteAt(b, s.torrent.PieceOffset(index)); err != nil {
		return false, fmt.Errorf("write piece %d: %s", index, err)
	}
	s.have.Set(uint(index))
	s.stats.Counter("pieces_written").Inc(1)
	s.stats.Counter("bytes_written").Inc(int64(len(b)))
	return true, nil
}

// ReadPiece returns the bytes of piece index if have[index] is true.
func (s *PieceStore) ReadPiece(index int) (b []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= s.torrent.NumPieces() {
		return nil, false, fmt.Errorf("piece index %d out of range", index)
	}
	if !s.have.Test(uint(index)) {
		return nil, false, nil
	}
	buf := make([]byte, s.torrent.GetPieceLength(index))
	if _, err := s.file.ReadAt(buf, s.torrent.PieceOffset(index)); err != nil {
		return nil, false, fmt.Errorf("read piece %d: %s", index, err)
	}
	return buf, true, nil
}

// SnapshotHave returns a consistent copy of the completion bitmap.
func (s *PieceStore) SnapshotHave() *bitset.BitSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.have.Clone()
}

// IsComplete returns true iff every piece is present.
func (s *PieceStore) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.have.All()
}

// Downloaded returns the number of bytes downloaded so far, computed as
// popcount(have) * piece_length (the last piece counts as a full
// piece_length, matching the tracker announce convention).
func (s *PieceStore) Downloaded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(s.have.Count()) * s.torrent.PieceLength
}

// Close releases the underlying file descriptor.
func (s *PieceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Torrent returns the torrent descriptor this store was constructed for.
func (s *PieceStore) Torrent() *core.Torrent {
	return s.torrent
}
