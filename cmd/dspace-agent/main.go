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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Mirantis/dspace/codeversion"
	"github.com/Mirantis/dspace/pkg/agent"
	dspcommon "github.com/Mirantis/dspace/pkg/common"
	"github.com/Mirantis/dspace/pkg/executor"
	"github.com/Mirantis/dspace/pkg/rpc"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:     "dspace-agent",
	Short:   "DSpace node agent",
	Version: codeversion.Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve node agent rpc and report node events to admin",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		return runAgent(cmd.Context())
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Exit with error unless local agent is ready",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		return runCheck(cmd.Context(), cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", dspcommon.AgentConfigFile, "agent yaml config file")
	rootCmd.AddCommand(runCmd, checkCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runAgent(ctx context.Context) error {
	log := dspcommon.InitLogger(true)
	log.Info().Msg(codeversion.String("DSpace agent"))
	cfg, opts, err := loadOptions(log)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}
	log = log.Level(cfg.LogLevel)
	endpoint, err := adminEndpoint(cfg)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}
	exec := executor.NewLocalExecutor(log, executor.LocalOptions{HostPrefix: cfg.HostPrefix, DefaultTimeout: cfg.CephCommandTimeout})
	defer exec.Close()
	clients := rpc.NewClientManager(log, cfg.RPC.CallTimeout)
	defer clients.Close()

	a := agent.New(log, exec, opts)
	if err := a.Run(ctx, rpc.NewAdminClient(clients, endpoint)); err != nil {
		log.Error().Err(err).Msg("agent failed")
		return err
	}
	return nil
}

func runCheck(ctx context.Context, cmd *cobra.Command) error {
	log := dspcommon.InitLogger(false).Level(zerolog.WarnLevel)
	cfg, _, err := loadOptions(log)
	if err != nil {
		return err
	}
	clients := rpc.NewClientManager(log, cfg.RPC.CallTimeout)
	defer clients.Close()
	return checkStatus(ctx, rpc.NewAgentClient(clients, localEndpoint(cfg)), cmd.OutOrStdout())
}
