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

// Command swarm-create builds a .torrent metafile for a local file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/swarmpeer/swarm/core"
	"github.com/swarmpeer/swarm/metainfo"
	"github.com/swarmpeer/swarm/swarmlog"
)

const defaultPieceLength = 256 * 1024

func main() {
	var pieceLengthStr string

	cmd := &cobra.Command{
		Use:   "swarm-create <file_to_share> <tracker_url>",
		Short: "Create a .torrent metafile for a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], pieceLengthStr)
		},
	}
	cmd.Flags().StringVar(&pieceLengthStr, "piece-length", "256KB", "piece size, e.g. 256KB, 1MB")

	if err := cmd.Execute(); err != nil {
		swarmlog.Fatalf("%s", err)
		os.Exit(1)
	}
}

func run(srcPath, trackerURL, pieceLengthStr string) error {
	var sz datasize.ByteSize
	if err := sz.UnmarshalText([]byte(pieceLengthStr)); err != nil {
		return fmt.Errorf("parse piece length: %s", err)
	}
	pieceLength := int64(sz.Bytes())
	if pieceLength <= 0 {
		pieceLength = defaultPieceLength
	}

	d, err := core.DigestFromFile(srcPath)
	if err != nil {
		return fmt.Errorf("digest source file: %s", err)
	}

	// Metafiles are named and sharded by the whole-file content digest
	// rather than the source file's name, so re-creating a torrent for
	// identical content always lands at the same path.
	shardDir := filepath.Join(filepath.Dir(srcPath), ".torrents", core.ShardID(d))
	if err := os.MkdirAll(shardDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %s", err)
	}
	dstPath := filepath.Join(shardDir, d.Encoded()+".torrent")

	t, err := metainfo.Create(srcPath, trackerURL, pieceLength, dstPath)
	if err != nil {
		return fmt.Errorf("create torrent: %s", err)
	}

	swarmlog.Infof(
		"wrote %s: %d pieces, %d bytes, digest=%s, info_hash=%s",
		dstPath, t.NumPieces(), t.Length, d, t.InfoHash.Hex())
	return nil
}
