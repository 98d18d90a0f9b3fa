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

// Command swarm-tracker runs the reference HTTP tracker for a given
// .torrent file.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/andres-erbsen/clock"
	"github.com/spf13/cobra"

	"github.com/swarmpeer/swarm/metainfo"
	"github.com/swarmpeer/swarm/swarmlog"
	"github.com/swarmpeer/swarm/tracker"
)

const defaultPort = 8000

func main() {
	cmd := &cobra.Command{
		Use:   "swarm-tracker <torrent_file>",
		Short: "Run the reference HTTP tracker for a torrent",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	if err := cmd.Execute(); err != nil {
		swarmlog.Fatalf("%s", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	t, err := metainfo.DecodeFile(args[0])
	if err != nil {
		return fmt.Errorf("decode torrent file: %s", err)
	}

	store := tracker.NewLocalStore(clock.New())
	server := tracker.NewServer(store)

	addr := fmt.Sprintf(":%d", defaultPort)
	swarmlog.Infof("tracker for %s listening on %s", t.Name, addr)
	return http.ListenAndServe(addr, server.Handler())
}
