package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"OpenAgents/sdk/go/openagents"
)

// PollInterval 为交互模式下轮询任务状态的间隔。
const PollInterval = 2 * time.Second

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [goal]",
		Short: "Interactive loop: submit goals, answer questions, read summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runChat(cmd, opts)
			}
			session, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			return session.run(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func runChat(cmd *cobra.Command, opts *rootOptions) error {
	session, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	return session.loop(cmd.Context())
}

func newSession(cmd *cobra.Command, opts *rootOptions) (*chatSession, error) {
	client, err := opts.client()
	if err != nil {
		return nil, err
	}
	return &chatSession{
		client:   client,
		in:       bufio.NewReader(cmd.InOrStdin()),
		out:      cmd.OutOrStdout(),
		interval: PollInterval,
	}, nil
}

// chatSession 维护一次交互会话的输入输出。
type chatSession struct {
	client   *openagents.Client
	in       *bufio.Reader
	out      io.Writer
	interval time.Duration
}

func (s *chatSession) loop(ctx context.Context) error {
	fmt.Fprintln(s.out, color.CyanString("openagents chat")+", type 'exit' to quit")
	fmt.Fprintln(s.out)
	for {
		goal, err := s.ask("What do you want to do? ")
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if goal == "" || strings.EqualFold(goal, "exit") || strings.EqualFold(goal, "quit") {
			fmt.Fprintln(s.out, "Bye.")
			return nil
		}
		if runErr := s.run(ctx, goal); runErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(s.out, color.RedString("Error: %v", runErr))
		}
		fmt.Fprintln(s.out)
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

// run 提交目标并轮询到终态，遇到 blocked 时向用户询问补充信息。
func (s *chatSession) run(ctx context.Context, goal string) error {
	id, err := s.client.SubmitTask(ctx, goal)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s task created: %s\n", statusLabel(openagents.StatusPending), id)
	return s.poll(ctx, id)
}

func (s *chatSession) poll(ctx context.Context, id string) error {
	last := openagents.StatusPending
	for {
		status, err := s.client.Status(ctx, id)
		if err != nil {
			return err
		}
		if status.Status != last {
			fmt.Fprintf(s.out, "%s %s\n", statusLabel(status.Status), statusMessage(status.Status))
			last = status.Status
		}

		switch {
		case status.Terminal():
			result, err := s.client.Result(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out)
			fmt.Fprintln(s.out, result.Summary)
			return nil
		case status.Status == openagents.StatusBlocked:
			question := status.BlockedReason
			if question == "" {
				question = "Can you give more details?"
			}
			fmt.Fprintln(s.out)
			fmt.Fprintln(s.out, color.YellowString("More information needed: ")+question)
			input, err := s.ask("> ")
			if input == "" {
				if err != nil {
					return err
				}
				continue
			}
			if err := s.client.Resume(ctx, id, input); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "%s %s\n", statusLabel(openagents.StatusRunning), "continuing...")
			last = openagents.StatusRunning
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

// ask 打印提示并读取一行输入，输入结束时返回已读内容与 io.EOF。
func (s *chatSession) ask(prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	line, err := s.in.ReadString('\n')
	return strings.TrimSpace(line), err
}

func statusMessage(status string) string {
	switch status {
	case openagents.StatusPending:
		return "queued..."
	case openagents.StatusRunning:
		return "orchestrator working..."
	case openagents.StatusBlocked:
		return "waiting for your input..."
	case openagents.StatusCompleted:
		return "done."
	case openagents.StatusFailed:
		return "the task failed."
	default:
		return status
	}
}
