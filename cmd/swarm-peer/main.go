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

// Command swarm-peer joins a swarm for a given .torrent file: it verifies
// or creates the local piece file, announces to the tracker, and exchanges
// pieces with other peers until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uber-go/tally"

	"github.com/swarmpeer/swarm/core"
	"github.com/swarmpeer/swarm/metainfo"
	"github.com/swarmpeer/swarm/store"
	"github.com/swarmpeer/swarm/swarm"
	"github.com/swarmpeer/swarm/swarmconfig"
	"github.com/swarmpeer/swarm/swarmlog"
	"github.com/swarmpeer/swarm/trackerclient"
)

const defaultPort = 6881

// fileConfig is the optional YAML file loaded via --config. Any CLI
// argument takes precedence over the value found here.
type fileConfig struct {
	Port             int    `yaml:"port"`
	PieceStoreDir    string `yaml:"piece_store_dir"`
	AnnounceInterval int    `yaml:"announce_interval_secs"`
}

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "swarm-peer <torrent_file> [port]",
		Short: "Join a swarm and exchange pieces for the given torrent",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (port, piece_store_dir, announce_interval_secs)")
	if err := cmd.Execute(); err != nil {
		swarmlog.Fatalf("%s", err)
		os.Exit(1)
	}
}

func run(args []string, configPath string) error {
	var fcfg fileConfig
	if configPath != "" {
		if err := swarmconfig.Load(configPath, &fcfg); err != nil {
			return fmt.Errorf("load config: %s", err)
		}
	}

	torrentPath := args[0]
	port := defaultPort
	if fcfg.Port != 0 {
		port = fcfg.Port
	}
	if len(args) == 2 {
		p, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port: %s", err)
		}
		port = p
	}

	t, err := metainfo.DecodeFile(torrentPath)
	if err != nil {
		return fmt.Errorf("decode torrent file: %s", err)
	}

	peerID, err := core.RandomPeerID()
	if err != nil {
		return fmt.Errorf("generate peer id: %s", err)
	}
	pctx := core.PeerContext{IP: "127.0.0.1", Port: port, PeerID: peerID}

	storeDir := "."
	if fcfg.PieceStoreDir != "" {
		storeDir = fcfg.PieceStoreDir
	}
	destPath := filepath.Join(storeDir, t.Name)
	ps, err := store.New(t, destPath, tally.NoopScope)
	if err != nil {
		return fmt.Errorf("open piece store: %s", err)
	}
	defer ps.Close()

	tc := trackerclient.NewHTTPClient(trackerclient.Config{})

	swarmConfig := swarm.Config{}
	if fcfg.AnnounceInterval != 0 {
		swarmConfig.AnnounceInterval = time.Duration(fcfg.AnnounceInterval) * time.Second
	}

	coord, err := swarm.New(swarmConfig, pctx, t, ps, tc, tally.NoopScope)
	if err != nil {
		return fmt.Errorf("create coordinator: %s", err)
	}

	swarmlog.Infof("peer %s joining swarm for %s on port %d", peerID, t.Name, port)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		swarmlog.Infof("received shutdown signal")
		cancel()
	}()

	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("coordinator run: %s", err)
	}
	return nil
}
