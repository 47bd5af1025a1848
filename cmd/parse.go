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
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/common/socket"
	"github.com/packetd/htp/confengine"
	"github.com/packetd/htp/controller"
	"github.com/packetd/htp/exporter"
	"github.com/packetd/htp/internal/json"
	"github.com/packetd/htp/internal/splitio"
	"github.com/packetd/htp/protocol/htp"
)

type parseCmdConfig struct {
	ConfigPath  string
	Request     string
	Response    string
	Split       string
	Personality string
	ClientPort  uint16
	ServerPort  uint16
	Pretty      bool
}

func (c *parseCmdConfig) htpConfig() (*htp.Config, error) {
	opts := common.NewOptions()
	if c.ConfigPath != "" {
		conf, err := confengine.LoadConfigPath(c.ConfigPath)
		if err != nil {
			return nil, err
		}
		if opts, err = conf.Options("htp"); err != nil {
			return nil, err
		}
	}
	if c.Personality != "" {
		opts.Merge("personality", c.Personality)
	}

	cfg, err := htp.ConfigFromOptions(opts)
	if err != nil {
		return nil, err
	}
	controller.WatchTransactions(cfg)
	return cfg, nil
}

func (c *parseCmdConfig) tuple() socket.Tuple {
	lo := socket.ToIPV4(net.IPv4(127, 0, 0, 1))
	return socket.Tuple{
		SrcIP:   lo,
		SrcPort: socket.Port(c.ClientPort),
		DstIP:   lo,
		DstPort: socket.Port(c.ServerPort),
	}
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// parseStreams 把请求与响应两个方向的字节流依次投递给解析器 每个事务输出一行 JSON
func parseStreams(cfg *htp.Config, client socket.Tuple, req, res []byte, mode splitio.Mode, w io.Writer, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}

	var encErr error
	ts := time.Now()
	tracker := controller.NewTracker(cfg, client, ts, func(conn *htp.Connection, tx *htp.Transaction, _ bool) {
		if err := enc.Encode(exporter.NewRecord(conn, tx)); err != nil && encErr == nil {
			encErr = err
		}
	})

	for _, chunk := range splitio.Split(req, mode) {
		tracker.RequestData(ts, chunk)
	}
	for _, chunk := range splitio.Split(res, mode) {
		tracker.ResponseData(ts, chunk)
	}
	tracker.Close(ts)
	return encErr
}

var parseConfig parseCmdConfig

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse raw request and response stream files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if parseConfig.Request == "" && parseConfig.Response == "" {
			return errors.New("at least one of --request and --response is required")
		}

		mode, err := splitio.ParseMode(parseConfig.Split)
		if err != nil {
			return err
		}
		cfg, err := parseConfig.htpConfig()
		if err != nil {
			return errors.Wrap(err, "failed to load htp config")
		}

		req, err := readOptional(parseConfig.Request)
		if err != nil {
			return err
		}
		res, err := readOptional(parseConfig.Response)
		if err != nil {
			return err
		}
		return parseStreams(cfg, parseConfig.tuple(), req, res, mode, cmd.OutOrStdout(), parseConfig.Pretty)
	},
	Example: "# htp parse --request req.raw --response res.raw --split lines --personality apache_2",
}

func init() {
	f := parseCmd.Flags()
	f.StringVar(&parseConfig.ConfigPath, "config", "", "Configuration file path, only the htp section is used")
	f.StringVar(&parseConfig.Request, "request", "", "Path to raw client-to-server stream, '-' for stdin")
	f.StringVar(&parseConfig.Response, "response", "", "Path to raw server-to-client stream")
	f.StringVar(&parseConfig.Split, "split", "none", "Feed data in pieces [none|lines|<bytes>]")
	f.StringVar(&parseConfig.Personality, "personality", "", "Server personality")
	f.Uint16Var(&parseConfig.ClientPort, "client-port", 40000, "Client port recorded on the connection")
	f.Uint16Var(&parseConfig.ServerPort, "server-port", 80, "Server port recorded on the connection")
	f.BoolVar(&parseConfig.Pretty, "pretty", false, "Indent json output")
	rootCmd.AddCommand(parseCmd)
}
