package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"OpenAgents/sdk/go/openagents"
)

// ServerEnv 指定编排服务地址的环境变量。
const ServerEnv = "ORCHESTRATOR_URL"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

type rootOptions struct {
	server string
}

func (o *rootOptions) client() (*openagents.Client, error) {
	return openagents.NewClient(o.server, nil)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	defaultServer := os.Getenv(ServerEnv)
	if defaultServer == "" {
		defaultServer = openagents.DefaultBaseURL
	}

	root := &cobra.Command{
		Use:           "openagents",
		Short:         "Command line client for the OpenAgents orchestrator",
		Long:          color.CyanString("openagents") + "\nSubmit goals, answer clarifying questions and read results.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", defaultServer, "orchestrator base URL (env "+ServerEnv+")")

	root.AddCommand(
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newResultCmd(opts),
		newResumeCmd(opts),
		newListCmd(opts),
		newToolsCmd(opts),
		newChatCmd(opts),
	)
	return root
}
