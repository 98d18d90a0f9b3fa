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
	"fmt"
	"io"
	"os"

	"github.com/opencontainers/go-digest"
)

// Digest identifies the content of a whole torrent, independent of the
// per-piece SHA-1 hashes used by the wire protocol. It is used for logging,
// stats tags, and naming the output of the torrent creator.
type Digest = digest.Digest

// DigestFromFile computes the canonical (sha256) Digest of the file at path.
func DigestFromFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %s", err)
	}
	defer f.Close()
	return DigestFromReader(f)
}

// DigestFromReader computes the canonical (sha256) Digest of r.
func DigestFromReader(r io.Reader) (Digest, error) {
	d, err := digest.Canonical.FromReader(r)
	if err != nil {
		return "", fmt.Errorf("digest: %s", err)
	}
	return d, nil
}

// DigestFromBytes computes the canonical (sha256) Digest of b.
func DigestFromBytes(b []byte) Digest {
	return digest.Canonical.FromBytes(b)
}

// ShardID returns a short prefix of the digest's hex encoding, suitable for
// sharding files across directories.
func ShardID(d Digest) string {
	enc := d.Encoded()
	if len(enc) < 4 {
		return enc
	}
	return enc[:4]
}
