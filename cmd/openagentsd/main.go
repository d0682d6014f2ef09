package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version 可在构建时通过 -ldflags "-X main.version=x.y.z" 覆盖。
var version = "dev"

// main 是 OpenAgents 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "openagentsd 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}

	root := &cobra.Command{
		Use:           "openagentsd",
		Short:         "OpenAgents orchestrator daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("OPENAGENTS_CONFIG"), "path to a JSON or YAML config file")

	root.AddCommand(serve, &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "openagentsd", version)
		},
	})
	return root
}
