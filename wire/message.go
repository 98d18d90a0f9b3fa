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
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/willf/bitset"
)

// MessageID identifies the kind of a framed message.
type MessageID byte

// Message ids, per the classic wire protocol.
const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	Bitfield
	Request
	Piece
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not-interested"
	case Have:
		return "have"
	case Bitfield:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	default:
		return fmt.Sprintf("unknown(%d)", byte(id))
	}
}

// Message is a single decoded frame (the zero value with ID == -1-like
// sentinel is never produced; KeepAlive is represented by IsKeepAlive).
type Message struct {
	IsKeepAlive bool
	ID          MessageID
	Index       uint32
	Begin       uint32
	Length      uint32
	Bitfield    []byte
	Block       []byte
}

// KeepAliveMessage returns a zero-length keep-alive frame.
func KeepAliveMessage() Message {
	return Message{IsKeepAlive: true}
}

// NewChoke, NewUnchoke, ... construct simple fixed-payload messages.
func NewChoke() Message         { return Message{ID: Choke} }
func NewUnchoke() Message       { return Message{ID: Unchoke} }
func NewInterested() Message    { return Message{ID: Interested} }
func NewNotInterested() Message { return Message{ID: NotInterested} }

// NewHave constructs a have(index) message.
func NewHave(index uint32) Message {
	return Message{ID: Have, Index: index}
}

// NewBitfield constructs a bitfield message from b, encoding numPieces bits
// MSB-first (piece i at bit 7-(i%8) of byte i/8).
func NewBitfield(b *bitset.BitSet, numPieces int) Message {
	return Message{ID: Bitfield, Bitfield: EncodeBitfield(b, numPieces)}
}

// NewRequest constructs a whole-piece request for index.
func NewRequest(index uint32, length uint32) Message {
	return Message{ID: Request, Index: index, Begin: 0, Length: length}
}

// NewPiece constructs a piece response carrying block at (index, begin).
func NewPiece(index, begin uint32, block []byte) Message {
	return Message{ID: Piece, Index: index, Begin: begin, Block: block}
}

// EncodeBitfield packs the low numPieces bits of b into MSB-first bytes.
func EncodeBitfield(b *bitset.BitSet, numPieces int) []byte {
	out := make([]byte, (numPieces+7)/8)
	for i := 0; i < numPieces; i++ {
		if b.Test(uint(i)) {
			out[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return out
}

// DecodeBitfield unpacks raw into a BitSet of numPieces bits, ignoring any
// trailing padding bits beyond numPieces.
func DecodeBitfield(raw []byte, numPieces int) *bitset.BitSet {
	b := bitset.New(uint(numPieces))
	for i := 0; i < numPieces; i++ {
		byteIdx := i / 8
		if byteIdx >= len(raw) {
			break
		}
		if raw[byteIdx]&(1<<uint(7-(i%8))) != 0 {
			b.Set(uint(i))
		}
	}
	return b
}

// WriteMessage frames and writes m to w.
func WriteMessage(w io.Writer, m Message) error {
	var payload []byte
	if m.IsKeepAlive {
		return writeUint32(w, 0)
	}

	switch m.ID {
	case Choke, Unchoke, Interested, NotInterested:
		payload = nil
	case Have:
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, m.Index)
	case Bitfield:
		payload = m.Bitfield
	case Request:
		payload = make([]byte, 12)
		binary.BigEndian.PutUint32(payload[0:4], m.Index)
		binary.BigEndian.PutUint32(payload[4:8], m.Begin)
		binary.BigEndian.PutUint32(payload[8:12], m.Length)
	case Piece:
		payload = make([]byte, 8+len(m.Block))
		binary.BigEndian.PutUint32(payload[0:4], m.Index)
		binary.BigEndian.PutUint32(payload[4:8], m.Begin)
		copy(payload[8:], m.Block)
	default:
		return fmt.Errorf("wire: unknown message id %d", m.ID)
	}

	length := uint32(1 + len(payload))
	if err := writeUint32(w, length); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.ID)}); err != nil {
		return fmt.Errorf("write message id: %s", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write message payload: %s", err)
		}
	}
	return nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("write length prefix: %s", err)
	}
	return nil
}

// maxFrameLength bounds a single frame so a corrupt or hostile peer cannot
// force an unbounded allocation.
const maxFrameLength = 16 * 1024 * 1024

// ReadMessage reads and parses exactly one frame from r, blocking until a
// full frame (or keep-alive) arrives or r returns an error.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return KeepAliveMessage(), nil
	}
	if length > maxFrameLength {
		return Message{}, fmt.Errorf("wire: frame length %d exceeds maximum", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("read message body: %s", err)
	}

	id := MessageID(body[0])
	payload := body[1:]

	switch id {
	case Choke, Unchoke, Interested, NotInterested:
		return Message{ID: id}, nil
	case Have:
		if len(payload) != 4 {
			return Message{}, fmt.Errorf("wire: have payload has invalid length %d", len(payload))
		}
		return Message{ID: id, Index: binary.BigEndian.Uint32(payload)}, nil
	case Bitfield:
		return Message{ID: id, Bitfield: payload}, nil
	case Request:
		if len(payload) != 12 {
			return Message{}, fmt.Errorf("wire: request payload has invalid length %d", len(payload))
		}
		return Message{
			ID:     id,
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case Piece:
		if len(payload) < 8 {
			return Message{}, fmt.Errorf("wire: piece payload too short (%d bytes)", len(payload))
		}
		return Message{
			ID:    id,
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Block: payload[8:],
		}, nil
	default:
		return Message{}, fmt.Errorf("wire: unknown message id %d", id)
	}
}
