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
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mirantis/dspace/codeversion"
	"github.com/Mirantis/dspace/pkg/admin"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/config"
	"github.com/Mirantis/dspace/pkg/db"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:     "dspace-admin",
	Short:   "DSpace admin service",
	Long:    "Serves node agents, runs cluster reconcilers and pushes alerts to dashboard subscribers.",
	Version: codeversion.Version,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "yaml config file, DSPACE_<KEY> environment overrides it")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := dspcommon.InitLogger(true)
	log.Info().Msg(codeversion.String("DSpace admin"))
	v, err := config.NewViper(configFile)
	if err != nil {
		log.Error().Err(err).Msg("failed to read configuration")
		return err
	}
	cfg, err := config.Load(log, v)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}
	log = log.Level(cfg.LogLevel)
	a, err := admin.Build(log, cfg, db.NewMemoryStore(), admin.Options{
		SSHKeyFile: v.GetString("ssh_key_file"),
		Version:    codeversion.Version,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize admin")
		return err
	}
	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("admin failed")
		return err
	}
	return nil
}
