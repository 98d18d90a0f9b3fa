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
package tracker

import (
	"encoding/json"
	"fmt"

	"github.com/gomodule/redigo/redis"

	"github.com/swarmpeer/swarm/core"
)

// RedisStore is a Store backed by Redis, for multi-process tracker
// deployments. Each info_hash maps to a Redis hash of peer id -> encoded
// core.PeerInfo, with a per-field TTL simulated by storing the encoded
// entry's own last-seen timestamp and filtering on read (Redis hash fields
// have no native per-field TTL).
type RedisStore struct {
	pool *redis.Pool
}

// NewRedisStore constructs a RedisStore using connections from pool.
func NewRedisStore(pool *redis.Pool) *RedisStore {
	return &RedisStore{pool: pool}
}

type redisPeerEntry struct {
	Peer     core.PeerInfo `json:"peer"`
	LastSeen int64         `json:"last_seen"`
}

func peerSetKey(infoHash core.InfoHash) string {
	return fmt.Sprintf("swarm:peers:%s", infoHash.Hex())
}

// Update implements Store.
func (s *RedisStore) Update(infoHash core.InfoHash, peer core.PeerInfo) error {
	conn := s.pool.Get()
	defer conn.Close()

	entry := redisPeerEntry{Peer: peer, LastSeen: nowUnix()}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal peer entry: %s", err)
	}
	if _, err := conn.Do("HSET", peerSetKey(infoHash), peer.PeerID.String(), b); err != nil {
		return fmt.Errorf("redis hset: %s", err)
	}
	if _, err := conn.Do("EXPIRE", peerSetKey(infoHash), peerTTL); err != nil {
		return fmt.Errorf("redis expire: %s", err)
	}
	return nil
}

// Remove implements Store.
func (s *RedisStore) Remove(infoHash core.InfoHash, peerID core.PeerID) error {
	conn := s.pool.Get()
	defer conn.Close()
	if _, err := conn.Do("HDEL", peerSetKey(infoHash), peerID.String()); err != nil {
		return fmt.Errorf("redis hdel: %s", err)
	}
	return nil
}

// GetPeers implements Store, dropping entries whose last-seen timestamp is
// older than peerTTL.
func (s *RedisStore) GetPeers(infoHash core.InfoHash) ([]core.PeerInfo, error) {
	conn := s.pool.Get()
	defer conn.Close()

	raw, err := redis.StringMap(conn.Do("HGETALL", peerSetKey(infoHash)))
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %s", err)
	}

	now := nowUnix()
	var out []core.PeerInfo
	for id, v := range raw {
		var entry redisPeerEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal peer entry: %s", err)
		}
		if now-entry.LastSeen > int64(peerTTL) {
			conn.Do("HDEL", peerSetKey(infoHash), id)
			continue
		}
		out = append(out, entry.Peer)
	}
	return out, nil
}
