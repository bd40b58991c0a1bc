/*
Copyright 2025 Mirantis IT.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mirantis/dspace/codeversion"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
	"github.com/Mirantis/dspace/pkg/connector"
	"github.com/Mirantis/dspace/pkg/executor"
)

var (
	configFile string
	opts       connector.Opts
)

var rootCmd = &cobra.Command{
	Use:     "dspace-connector",
	Short:   "Print connection info of DSpace ceph cluster for external consumers",
	Version: codeversion.Version,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		log := dspcommon.InitLogger(false)
		v, err := config.NewViper(configFile)
		if err != nil {
			return err
		}
		cfg, err := config.Load(log, v)
		if err != nil {
			return err
		}
		log = log.Level(cfg.LogLevel)
		opts.Cephx = cfg.EnableCephx
		opts.Timeout = cfg.CephCommandTimeout
		exec := executor.NewLocalExecutor(log, executor.LocalOptions{HostPrefix: cfg.HostPrefix, DefaultTimeout: cfg.CephCommandTimeout})
		defer exec.Close()

		s, err := connector.NewCephConnector(log, exec).PrepareConnectionString(cmd.Context(), opts)
		if err != nil {
			log.Error().Err(err).Msg("connection string failed to prepare")
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "yaml config file of admin service")
	flags.StringVar(&opts.ClusterID, "cluster-id", "", "uuid of cluster")
	flags.StringVar(&opts.ClientName, "client-name", "admin", "name of ceph client which will be used for connecting to cluster, without 'client' prefix")
	flags.BoolVar(&opts.EncodedBase64, "base64", false, "show connection string as base64 encoded")
	_ = rootCmd.MarkFlagRequired("cluster-id")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
