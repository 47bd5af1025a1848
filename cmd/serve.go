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
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/confengine"
	"github.com/packetd/htp/controller"
	"github.com/packetd/htp/internal/sigs"
	"github.com/packetd/htp/logger"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve [flags] [pcap-file]...",
	Short: "Run the admin server, replaying the given pcap files in background",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := confengine.LoadConfigPath(serveConfigPath)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		ctr, err := controller.New(cfg, common.GetBuildInfo())
		if err != nil {
			return errors.Wrap(err, "failed to create controller")
		}
		if err := ctr.Start(); err != nil {
			return errors.Wrap(err, "failed to start controller")
		}

		if len(args) > 0 {
			go func() {
				if err := ctr.Replay(ctr.Context(), args...); err != nil && !errors.Is(err, context.Canceled) {
					logger.Errorf("failed to replay files: %v", err)
				}
			}()
		}

		term, reload := sigs.Terminate(), sigs.Reload()
		for {
			select {
			case <-term:
				if err := ctr.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "failed to stop controller: %v\n", err)
				}
				return nil

			case <-reload:
				newCfg, err := confengine.LoadConfigPath(serveConfigPath)
				if err != nil {
					logger.Errorf("failed to load config: %v", err)
					continue
				}
				if err := ctr.Reload(newCfg); err != nil {
					logger.Errorf("failed to reload controller: %v", err)
					continue
				}
				logger.Infof("controller reloaded")
			}
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "htp.yaml", "Configuration file path")
	rootCmd.AddCommand(serveCmd)
}
