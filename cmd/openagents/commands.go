package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"OpenAgents/sdk/go/openagents"
)

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <goal>",
		Short: "Submit a goal and print the task id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			id, err := client.SubmitTask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func newResultCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "result <task-id>",
		Short: "Print the summary of a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			result, err := client.Result(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newResumeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <task-id> <input>",
		Short: "Answer the clarifying question of a blocked task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.Resume(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("resumed"), args[0])
			return nil
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		statuses []string
		limit    int
		query    string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			tasks, err := client.ListTasks(cmd.Context(), openagents.ListOptions{
				Statuses: statuses,
				Limit:    limit,
				Query:    query,
			})
			if err != nil {
				return err
			}
			for _, t := range tasks {
				printStatus(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of tasks")
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive text filter")
	return cmd
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools registered in the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			specs, err := client.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, spec := range specs {
				fmt.Fprintf(out, "%s  %s\n", color.CyanString(spec.Name), spec.Description)
				fmt.Fprintf(out, "    side effects: %s  permissions: %s\n", spec.SideEffects, strings.Join(spec.Permissions, ", "))
			}
			return nil
		},
	}
}

func printStatus(w io.Writer, status openagents.TaskStatus) {
	line := fmt.Sprintf("%s  %s  %s", status.ID, statusLabel(status.Status), status.UpdatedAt.Format("2006-01-02 15:04:05"))
	if status.BlockedReason != "" {
		line += "  " + status.BlockedReason
	}
	fmt.Fprintln(w, line)
}

func printResult(w io.Writer, result openagents.TaskResult) {
	fmt.Fprintln(w, statusLabel(result.Status))
	fmt.Fprintln(w, result.Summary)
	for _, artifact := range result.Artifacts {
		fmt.Fprintf(w, "\n[%s]\n%s\n", artifact.Type, artifact.Content)
	}
}

func statusLabel(status string) string {
	label := "[" + status + "]"
	switch status {
	case openagents.StatusCompleted:
		return color.GreenString(label)
	case openagents.StatusFailed:
		return color.RedString(label)
	case openagents.StatusBlocked:
		return color.YellowString(label)
	default:
		return color.CyanString(label)
	}
}
