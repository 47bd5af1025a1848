// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "htp",
	Short: "Permissive HTTP/1.x parser and transaction tracker",
	Long: `htp reassembles tcp streams from pcap files and parses them as HTTP/1.x
transactions the way a security sensor does: tolerant of malformed traffic,
recording every anomaly it sees.

Commands:
  replay   Replay pcap files and export transactions
  parse    Parse raw request/response stream files
  serve    Run the admin server and replay files on demand
  version  Print version information`,
	SilenceUsage: true,
}

// Execute 执行命令行入口
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
