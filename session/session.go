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

// Package session implements the per-connection wire protocol state
// machine: handshake, bitfield exchange, and the pipelined
// request/response steady-state loop.
package session

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"github.com/willf/bitset"

	"github.com/swarmpeer/swarm/core"
	"github.com/swarmpeer/swarm/store"
	"github.com/swarmpeer/swarm/swarmlog"
	"github.com/swarmpeer/swarm/wire"
)

// receivePollTimeout bounds how long a steady-state loop iteration blocks
// on a socket read, so the loop can make progress on timers and shutdown.
const receivePollTimeout = time.Second

// keepAliveInterval is how long a session may go without sending before it
// must emit a keep-alive.
const keepAliveInterval = 60 * time.Second

// Coordinator is the subset of swarm.Coordinator a Session needs: notifying
// the owner when a piece is accepted so it can broadcast have() to every
// live session. Declared here (not in swarm) so session has no
// import-cycle dependency on its owner.
type Coordinator interface {
	OnPieceAccepted(index int)
}

// Config controls session timing. Exposed for tests that need to run the
// steady-state loop without waiting on real wall-clock timers.
type Config struct {
	Clock clock.Clock
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Session owns one TCP connection for the duration of a peer exchange. It
// is created on accept or connect, and destroyed on disconnect.
type Session struct {
	config  Config
	conn    net.Conn
	torrent *core.Torrent
	store   *store.PieceStore
	coord   Coordinator
	stats   tally.Scope

	peerID core.PeerID

	sendMu sync.Mutex // serializes writes to the socket

	amChoked   bool
	peerHave   *bitset.BitSet
	reqs       *PieceRequestManager
	lastSend   time.Time
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// Handshake performs the handshake half of a session, verifying the
// remote's info_hash. It must be called before New. Returns the remote
// peer id.
func Handshake(conn net.Conn, localID core.PeerID, infoHash core.InfoHash, inbound bool) (core.PeerID, error) {
	if inbound {
		remoteID, err := wire.ReceiveHandshake(conn, infoHash)
		if err != nil {
			return core.PeerID{}, err
		}
		if err := wire.SendHandshake(conn, infoHash, localID); err != nil {
			return core.PeerID{}, err
		}
		return remoteID, nil
	}
	if err := wire.SendHandshake(conn, infoHash, localID); err != nil {
		return core.PeerID{}, err
	}
	return wire.ReceiveHandshake(conn, infoHash)
}

// New constructs a Session for an already-handshaken connection and
// performs the opening sequence (send bitfield, interested, unchoke).
func New(
	config Config,
	conn net.Conn,
	peerID core.PeerID,
	t *core.Torrent,
	ps *store.PieceStore,
	coord Coordinator,
	stats tally.Scope) (*Session, error) {

	config.applyDefaults()
	if stats == nil {
		stats = tally.NoopScope
	}

	s := &Session{
		config:     config,
		conn:       conn,
		torrent:    t,
		store:      ps,
		coord:      coord,
		stats:      stats,
		peerID:     peerID,
		amChoked:   true,
		peerHave:   bitset.New(uint(t.NumPieces())),
		reqs:       NewPieceRequestManager(config.Clock),
		lastSend:   config.Clock.Now(),
		shutdownCh: make(chan struct{}),
	}

	if err := s.sendOpeningSequence(); err != nil {
		return nil, err
	}
	return s, nil
}

// PeerID returns the remote peer's handshake identity.
func (s *Session) PeerID() core.PeerID { return s.peerID }

// Addr returns the remote address of the underlying connection.
func (s *Session) Addr() string { return s.conn.RemoteAddr().String() }

func (s *Session) sendOpeningSequence() error {
	have := s.store.SnapshotHave()
	if err := s.send(wire.NewBitfield(have, s.torrent.NumPieces())); err != nil {
		return fmt.Errorf("send bitfield: %s", err)
	}
	if err := s.send(wire.NewInterested()); err != nil {
		return fmt.Errorf("send interested: %s", err)
	}
	if err := s.send(wire.NewUnchoke()); err != nil {
		return fmt.Errorf("send unchoke: %s", err)
	}
	return nil
}

func (s *Session) send(m wire.Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := wire.WriteMessage(s.conn, m); err != nil {
		return err
	}
	s.lastSend = s.config.Clock.Now()
	return nil
}

// SendHave pushes a have(index) message out this session's serialized send
// path. Called by the Coordinator when the Piece Store accepts a new piece
// from any session.
func (s *Session) SendHave(index int) error {
	return s.send(wire.NewHave(uint32(index)))
}

// Shutdown fires the one-shot shutdown signal and closes the socket. Safe
// to call more than once and from a different goroutine than Run.
func (s *Session) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.shutdownCh)
		s.conn.Close()
	})
}

// Run executes the steady-state loop until the socket closes, the
// shutdown signal fires, or an unrecoverable wire error occurs. It always
// returns with the socket closed exactly once.
func (s *Session) Run() error {
	defer s.Shutdown()

	for {
		select {
		case <-s.shutdownCh:
			return nil
		default:
		}

		if err := s.maybeKeepAlive(); err != nil {
			return fmt.Errorf("keep-alive: %s", err)
		}

		s.reqs.SweepExpired()

		if err := s.pumpRequests(); err != nil {
			return fmt.Errorf("request pump: %s", err)
		}

		if err := s.receiveAndDispatchOne(); err != nil {
			if errors.Is(err, errPollTimeout) {
				continue
			}
			return err
		}
	}
}

func (s *Session) maybeKeepAlive() error {
	if s.config.Clock.Now().Sub(s.lastSend) > keepAliveInterval {
		return s.send(wire.KeepAliveMessage())
	}
	return nil
}

func (s *Session) pumpRequests() error {
	for {
		if s.amChoked || s.store.IsComplete() {
			return nil
		}
		index, ok := s.reqs.NextRequest(s.torrent.NumPieces(), s.haveIndex, s.peerHaveIndex)
		if !ok {
			return nil
		}
		length := uint32(s.torrent.GetPieceLength(index))
		if err := s.send(wire.NewRequest(uint32(index), length)); err != nil {
			return err
		}
		s.reqs.Add(index)
	}
}

func (s *Session) haveIndex(i int) bool {
	have := s.store.SnapshotHave()
	return have.Test(uint(i))
}

func (s *Session) peerHaveIndex(i int) bool {
	return s.peerHave.Test(uint(i))
}

var errPollTimeout = errors.New("session: receive poll timeout")

// receiveAndDispatchOne blocks for at most receivePollTimeout waiting for a
// full frame. A timeout while a frame is only partially received desyncs
// the stream; acceptable at this teaching scale, where peers are
// cooperative and frames are small.
func (s *Session) receiveAndDispatchOne() error {
	// Socket deadlines are wall-clock times, so this does not use the
	// injectable Config.Clock.
	s.conn.SetReadDeadline(time.Now().Add(receivePollTimeout))
	m, err := wire.ReadMessage(s.conn)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return errPollTimeout
		}
		return err
	}
	return s.dispatch(m)
}

func (s *Session) dispatch(m wire.Message) error {
	if m.IsKeepAlive {
		return nil
	}
	switch m.ID {
	case wire.Choke:
		s.amChoked = true
		s.reqs.Clear()
	case wire.Unchoke:
		s.amChoked = false
	case wire.Have:
		if int(m.Index) < s.torrent.NumPieces() {
			s.peerHave.Set(uint(m.Index))
		}
	case wire.Bitfield:
		s.peerHave = wire.DecodeBitfield(m.Bitfield, s.torrent.NumPieces())
	case wire.Request:
		return s.handleRequest(m)
	case wire.Piece:
		return s.handlePiece(m)
	case wire.Interested, wire.NotInterested:
		// Recognized but not acted on: this core never implements local
		// choking policy.
	default:
		return fmt.Errorf("session: unhandled message id %d", m.ID)
	}
	return nil
}

func (s *Session) handleRequest(m wire.Message) error {
	index := int(m.Index)
	if index < 0 || index >= s.torrent.NumPieces() {
		return nil
	}
	if m.Begin != 0 || int64(m.Length) != s.torrent.GetPieceLength(index) {
		// Conformance choice: ignore non-whole-piece requests.
		return nil
	}
	b, ok, err := s.store.ReadPiece(index)
	if err != nil {
		return fmt.Errorf("read piece %d: %s", index, err)
	}
	if !ok {
		return nil
	}
	return s.send(wire.NewPiece(m.Index, 0, b))
}

func (s *Session) handlePiece(m wire.Message) error {
	index := int(m.Index)
	if !s.reqs.Has(index) {
		return nil
	}
	s.reqs.Remove(index)

	accepted, err := s.store.WritePiece(index, m.Block)
	if err != nil {
		swarmlog.Errorf("write piece %d from %s: %s", index, s.Addr(), err)
		return nil
	}
	if accepted {
		if s.coord != nil {
			s.coord.OnPieceAccepted(index)
		}
		s.stats.Counter("pieces_received").Inc(1)
	}
	return nil
}
