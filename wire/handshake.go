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

// Package wire implements the classic BitTorrent handshake and the
// length-prefixed framed message protocol used after it.
package wire

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/swarmpeer/swarm/core"
)

const protocolID = "BitTorrent protocol"

// HandshakeTimeout bounds how long a handshake read/write may block.
const HandshakeTimeout = 10 * time.Second

// handshakeLen is len(<pstrlen><pstr><reserved><info_hash><peer_id>).
const handshakeLen = 1 + len(protocolID) + 8 + 20 + 20

// ErrHandshakeMismatch is returned when the remote's info_hash does not
// match the local torrent.
var ErrHandshakeMismatch = errors.New("wire: handshake info_hash mismatch")

type deadlineConn interface {
	io.ReadWriter
	SetDeadline(time.Time) error
}

// SendHandshake writes the 68-byte handshake for infoHash/peerID to w.
func SendHandshake(w deadlineConn, infoHash core.InfoHash, peerID core.PeerID) error {
	w.SetDeadline(time.Now().Add(HandshakeTimeout))
	defer w.SetDeadline(time.Time{})

	buf := make([]byte, 0, handshakeLen)
	buf = append(buf, byte(len(protocolID)))
	buf = append(buf, protocolID...)
	buf = append(buf, make([]byte, 8)...)
	buf = append(buf, infoHash.Bytes()...)
	buf = append(buf, peerID[:]...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write handshake: %s", err)
	}
	return nil
}

// ReceiveHandshake reads and parses a 68-byte handshake from r, verifying
// its info_hash equals localHash. Returns the remote's peer id.
func ReceiveHandshake(r deadlineConn, localHash core.InfoHash) (core.PeerID, error) {
	r.SetDeadline(time.Now().Add(HandshakeTimeout))
	defer r.SetDeadline(time.Time{})

	buf := make([]byte, handshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return core.PeerID{}, fmt.Errorf("read handshake: %s", err)
	}
	if int(buf[0]) != len(protocolID) || string(buf[1:1+len(protocolID)]) != protocolID {
		return core.PeerID{}, errors.New("wire: invalid protocol header")
	}
	off := 1 + len(protocolID) + 8
	var remoteHash core.InfoHash
	copy(remoteHash[:], buf[off:off+20])
	if remoteHash != localHash {
		return core.PeerID{}, ErrHandshakeMismatch
	}
	var peerID core.PeerID
	copy(peerID[:], buf[off+20:off+40])
	return peerID, nil
}
