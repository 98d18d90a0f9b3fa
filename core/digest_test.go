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
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestFromBytesIsDeterministic(t *testing.T) {
	content := []byte("swarm content")
	require.Equal(t, DigestFromBytes(content), DigestFromBytes(content))
}

func TestDigestFromFileMatchesDigestFromBytes(t *testing.T) {
	content := []byte("swarm content")
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, ioutil.WriteFile(path, content, 0644))

	fromFile, err := DigestFromFile(path)
	require.NoError(t, err)
	require.Equal(t, DigestFromBytes(content), fromFile)
}

func TestDigestFromReaderMatchesDigestFromBytes(t *testing.T) {
	content := []byte("swarm content")
	fromReader, err := DigestFromReader(bytes.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, DigestFromBytes(content), fromReader)
}

func TestShardIDIsPrefixOfEncodedDigest(t *testing.T) {
	d := DigestFromBytes([]byte("swarm content"))
	shard := ShardID(d)
	require.Len(t, shard, 4)
	require.Equal(t, d.Encoded()[:4], shard)
}
