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

// Package swarm implements the Swarm Coordinator: it owns the set of live
// Peer Sessions, accepts inbound connections, dials tracker-supplied peer
// endpoints, announces to the tracker on a schedule, and orchestrates
// shutdown.
package swarm

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/swarmpeer/swarm/core"
	"github.com/swarmpeer/swarm/session"
	"github.com/swarmpeer/swarm/store"
	"github.com/swarmpeer/swarm/swarmlog"
	"github.com/swarmpeer/swarm/trackerclient"
)

// acceptPollTimeout is not referenced by acceptLoop, which does not poll
// Accept with a timeout: it returns as soon as ctx is canceled, and shutdown
// closes the listener to end the pending Accept.
const acceptPollTimeout = time.Second

// dialTimeout bounds an outbound connection attempt.
const dialTimeout = 5 * time.Second

// announceInterval is the fixed periodic announce cadence.
const announceInterval = 10 * time.Second

// reapInterval is how often terminated sessions are pruned from the
// registry.
const reapInterval = 5 * time.Second

// joinTimeout bounds how long shutdown waits for sessions to exit.
const joinTimeout = 5 * time.Second

// Config controls Coordinator timing. Zero fields take the package
// defaults; Clock can be replaced so the loops don't depend on real
// wall-clock sleeps.
type Config struct {
	Clock            clock.Clock
	AnnounceInterval time.Duration
	ReapInterval     time.Duration
	JoinTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.AnnounceInterval == 0 {
		c.AnnounceInterval = announceInterval
	}
	if c.ReapInterval == 0 {
		c.ReapInterval = reapInterval
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = joinTimeout
	}
}

type registeredSession struct {
	s    *session.Session
	done chan struct{}
}

// Coordinator owns the listener, dialer, tracker announcer, and session
// registry for a single torrent.
type Coordinator struct {
	config   Config
	pctx     core.PeerContext
	torrent  *core.Torrent
	store    *store.PieceStore
	tracker  trackerclient.Client
	stats    tally.Scope
	listener net.Listener

	mu       sync.Mutex
	sessions map[core.PeerID]*registeredSession

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// New constructs a Coordinator and binds its listener on pctx.Port.
func New(
	config Config,
	pctx core.PeerContext,
	t *core.Torrent,
	ps *store.PieceStore,
	tc trackerclient.Client,
	stats tally.Scope) (*Coordinator, error) {

	config.applyDefaults()
	if stats == nil {
		stats = tally.NoopScope
	}

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", pctx.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %s", pctx.Port, err)
	}

	return &Coordinator{
		config:   config,
		pctx:     pctx,
		torrent:  t,
		store:    ps,
		tracker:  tc,
		stats:    stats,
		listener: l,
		sessions: make(map[core.PeerID]*registeredSession),
	}, nil
}

// Run starts the listener, announcer, and reaper, and blocks until ctx is
// canceled. On return, every worker has been joined (subject to
// JoinTimeout) and a final stopped announce has been attempted.
func (c *Coordinator) Run(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error { c.acceptLoop(ctx); return nil })
	g.Go(func() error { c.announceLoop(ctx); return nil })
	g.Go(func() error { c.reapLoop(ctx); return nil })

	<-ctx.Done()
	return c.shutdown(func() error {
		err := g.Wait()
		c.wg.Wait() // session goroutines started by registerSession
		return err
	})
}

func (c *Coordinator) shutdown(joinWorkers func() error) error {
	c.shuttingDown.Store(true)
	c.listener.Close()

	c.mu.Lock()
	for _, rs := range c.sessions {
		rs.s.Shutdown()
	}
	c.mu.Unlock()

	joinErrCh := make(chan error, 1)
	go func() { joinErrCh <- joinWorkers() }()

	var joinErr error
	select {
	case joinErr = <-joinErrCh:
	case <-c.config.Clock.After(c.config.JoinTimeout):
		joinErr = fmt.Errorf("timed out after %s waiting for workers to stop", c.config.JoinTimeout)
	}

	announceErr := c.tracker.Announce(c.announceRequest(trackerclient.EventStopped))
	if announceErr != nil {
		swarmlog.Warnf("final stopped announce failed: %s", announceErr)
	}

	return joinErr
}

func (c *Coordinator) acceptLoop(ctx context.Context) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	results := make(chan acceptResult, 1)
	go func() {
		for {
			conn, err := c.listener.Accept()
			results <- acceptResult{conn, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-results:
			if r.err != nil {
				if c.shuttingDown.Load() {
					return
				}
				swarmlog.Warnf("accept error: %s", r.err)
				continue
			}
			c.handleAccepted(r.conn)
		}
	}
}

func (c *Coordinator) handleAccepted(conn net.Conn) {
	peerID, err := session.Handshake(conn, c.pctx.PeerID, c.torrent.InfoHash, true)
	if err != nil {
		swarmlog.Infof("rejecting inbound connection from %s: %s", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	if peerID == c.pctx.PeerID {
		conn.Close()
		return
	}
	c.registerSession(conn, peerID)
}

// Dial attempts an outbound connection to addr, skipping self and
// duplicate peers: an address already held by a session is not dialed, and
// a handshake that reveals a peer id with a live session is closed.
func (c *Coordinator) Dial(ip string, port int) {
	if c.isSelf(ip, port) {
		return
	}
	addr := fmt.Sprintf("%s:%d", ip, port)

	c.mu.Lock()
	for _, rs := range c.sessions {
		if rs.s.Addr() == addr {
			c.mu.Unlock()
			return
		}
	}
	c.mu.Unlock()

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		swarmlog.Infof("dial %s: %s", addr, err)
		return
	}

	peerID, err := session.Handshake(conn, c.pctx.PeerID, c.torrent.InfoHash, false)
	if err != nil {
		swarmlog.Infof("handshake with %s: %s", addr, err)
		conn.Close()
		return
	}
	if peerID == c.pctx.PeerID {
		conn.Close()
		return
	}
	c.mu.Lock()
	existing, dup := c.sessions[peerID]
	c.mu.Unlock()
	if dup {
		select {
		case <-existing.done:
		default:
			conn.Close()
			return
		}
	}
	c.registerSession(conn, peerID)
}

func (c *Coordinator) isSelf(ip string, port int) bool {
	if port != c.pctx.Port {
		return false
	}
	if ip == c.pctx.IP || ip == "127.0.0.1" || ip == "localhost" {
		return true
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.String() == ip {
			return true
		}
	}
	return false
}

func (c *Coordinator) registerSession(conn net.Conn, peerID core.PeerID) {
	s, err := session.New(session.Config{Clock: c.config.Clock}, conn, peerID, c.torrent, c.store, c, c.stats)
	if err != nil {
		swarmlog.Warnf("create session for %s: %s", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	rs := &registeredSession{s: s, done: make(chan struct{})}
	c.mu.Lock()
	c.sessions[peerID] = rs
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(rs.done)
		if err := s.Run(); err != nil {
			swarmlog.Infof("session with %s ended: %s", conn.RemoteAddr(), err)
		}
	}()
}

// OnPieceAccepted implements session.Coordinator: broadcast have(index) to
// every live session, including the one that delivered the piece.
func (c *Coordinator) OnPieceAccepted(index int) {
	c.mu.Lock()
	sessions := make([]*session.Session, 0, len(c.sessions))
	for _, rs := range c.sessions {
		sessions = append(sessions, rs.s)
	}
	c.mu.Unlock()

	var errs error
	for _, s := range sessions {
		if err := s.SendHave(index); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("send have(%d) to %s: %s", index, s.Addr(), err))
		}
	}
	if errs != nil {
		swarmlog.Warnf("have broadcast errors: %s", errs)
	}
}

func (c *Coordinator) reapLoop(ctx context.Context) {
	ticker := c.config.Clock.Ticker(c.config.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reap()
		}
	}
}

func (c *Coordinator) reap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, rs := range c.sessions {
		select {
		case <-rs.done:
			delete(c.sessions, id)
		default:
		}
	}
}

func (c *Coordinator) announceLoop(ctx context.Context) {
	event := trackerclient.EventStarted
	if c.store.IsComplete() {
		event = trackerclient.EventCompleted
	}
	c.announce(event)

	wasComplete := c.store.IsComplete()
	ticker := c.config.Clock.Ticker(c.config.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !wasComplete && c.store.IsComplete() {
				c.announce(trackerclient.EventCompleted)
				wasComplete = true
				continue
			}
			c.announce(trackerclient.EventNone)
		}
	}
}

func (c *Coordinator) announce(event trackerclient.Event) {
	resp, err := c.tracker.Announce(c.announceRequest(event))
	if err != nil {
		swarmlog.Warnf("tracker announce failed: %s", err)
		return
	}
	for _, p := range resp.Peers {
		if p.PeerID == c.pctx.PeerID {
			continue
		}
		go c.Dial(p.IP, p.Port)
	}
}

func (c *Coordinator) announceRequest(event trackerclient.Event) trackerclient.AnnounceRequest {
	downloaded := c.store.Downloaded()
	return trackerclient.AnnounceRequest{
		TrackerURL: c.torrent.TrackerURL,
		InfoHash:   c.torrent.InfoHash,
		PeerID:     c.pctx.PeerID,
		Port:       c.pctx.Port,
		Uploaded:   0,
		Downloaded: downloaded,
		Left:       c.torrent.Length - downloaded,
		Event:      event,
	}
}

// Addr returns the address the listener is bound to.
func (c *Coordinator) Addr() net.Addr {
	return c.listener.Addr()
}
