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
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/confengine"
	"github.com/packetd/htp/controller"
	"github.com/packetd/htp/internal/json"
	"github.com/packetd/htp/internal/sigs"
)

type replayCmdConfig struct {
	ConfigPath         string
	Console            bool
	Output             string
	OutputSize         int
	OutputBackups      int
	LogLevel           string
	IPv4Only           bool
	Hosts              []string
	Ports              []uint
	ConnExpired        time.Duration
	Personality        string
	TxAutoDestroy      bool
	Decompress         bool
	Webhook            string
	WebhookCompression string
}

const replayTemplate = `
logger:
  stdout: true
  level: {{ .LogLevel }}

controller:
  connExpired: {{ .ConnExpired }}

sniffer:
  engine: pcapfile
  ipv4Only: {{ .IPv4Only }}
{{- if .Hosts }}
  hosts: {{ list .Hosts }}
{{- end }}
{{- if .Ports }}
  ports: {{ list .Ports }}
{{- end }}

htp:
{{- if .Personality }}
  personality: {{ .Personality }}
{{- end }}
  tx_auto_destroy: {{ .TxAutoDestroy }}
  request_decompression: {{ .Decompress }}

exporter:
  transactions:
    enabled: true
    console: {{ .Console }}
    filename: {{ .Output }}
    maxSize: {{ .OutputSize }}
    maxBackups: {{ .OutputBackups }}
    maxAge: 7
{{- if .Webhook }}
  webhook:
    enabled: true
    endpoint: {{ .Webhook }}
    compression: {{ .WebhookCompression }}
{{- end }}
`

func (c *replayCmdConfig) Yaml() ([]byte, error) {
	tpl, err := template.New("Config").Funcs(template.FuncMap{
		"list": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}).Parse(replayTemplate)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load 指定了配置文件时忽略其余命令行参数
func (c *replayCmdConfig) Load() (*confengine.Config, error) {
	if c.ConfigPath != "" {
		return confengine.LoadConfigPath(c.ConfigPath)
	}
	b, err := c.Yaml()
	if err != nil {
		return nil, err
	}
	return confengine.LoadContent(b)
}

var replayConfig replayCmdConfig

var replayCmd = &cobra.Command{
	Use:   "replay [flags] <pcap-file>...",
	Short: "Replay pcap files and export HTTP transactions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := replayConfig.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		ctr, err := controller.New(cfg, common.GetBuildInfo())
		if err != nil {
			return errors.Wrap(err, "failed to create controller")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-sigs.Terminate():
				cancel()
			case <-ctx.Done():
			}
		}()

		replayErr := ctr.Replay(ctx, args...)
		if err := ctr.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to stop controller: %v\n", err)
		}
		return replayErr
	},
	Example: "# htp replay --port 80 --port 8080 --console capture.pcap",
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayConfig.ConfigPath, "config", "", "Configuration file path, overrides all other flags")
	f.BoolVar(&replayConfig.Console, "console", false, "Write transactions to stdout instead of file")
	f.StringVar(&replayConfig.Output, "output", "htp.transactions", "Path to transactions file")
	f.IntVar(&replayConfig.OutputSize, "output.size", 100, "Maximum size of transactions file in MB")
	f.IntVar(&replayConfig.OutputBackups, "output.backups", 10, "Maximum number of old transactions files to retain")
	f.StringVar(&replayConfig.LogLevel, "log-level", "info", "Logger level [debug|info|warn|error]")
	f.BoolVar(&replayConfig.IPv4Only, "ipv4-only", false, "Ignore IPv6 packets")
	f.StringSliceVar(&replayConfig.Hosts, "host", nil, "Server hosts to capture, multiple hosts supported")
	f.UintSliceVar(&replayConfig.Ports, "port", nil, "Server ports to capture, multiple ports supported")
	f.DurationVar(&replayConfig.ConnExpired, "conn-expired", 5*time.Minute, "Close connections idle longer than this (packet time)")
	f.StringVar(&replayConfig.Personality, "personality", "", "Server personality [minimal|generic|ids|iis_4_0|iis_5_0|iis_5_1|iis_6_0|iis_7_0|iis_7_5|apache_2]")
	f.BoolVar(&replayConfig.TxAutoDestroy, "tx-auto-destroy", true, "Release transactions once exported")
	f.BoolVar(&replayConfig.Decompress, "request-decompression", false, "Decompress request bodies")
	f.StringVar(&replayConfig.Webhook, "webhook", "", "Also POST transactions to this http endpoint")
	f.StringVar(&replayConfig.WebhookCompression, "webhook.compression", "none", "Webhook compression [none|gzip|snappy]")
	rootCmd.AddCommand(replayCmd)
}
