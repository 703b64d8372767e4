package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gm-agent-org/gm-genai/packages/cli/internal/client"
	"github.com/spf13/cobra"
)

type runOptions struct {
	system  string
	model   string
	apply   bool
	async   bool
	raw     bool
	timeout time.Duration
}

// NewRunCmd creates the one-shot run command.
func NewRunCmd(cfg *Config) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a one-off session",
		Long:  "Run a one-off session. Use - as the prompt to read it from stdin.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read prompt: %w", err)
				}
				prompt = string(data)
			}
			return executeOneShot(cmd, cfg, opts, prompt)
		},
	}
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model override")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Apply proposed file edits in the server workspace")
	cmd.Flags().BoolVar(&opts.async, "async", false, "Start the run and return its ID immediately")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print the answer without markdown rendering")
	cmd.Flags().DurationVar(&opts.timeout, "wait", 10*time.Minute, "How long to wait for the run to finish")
	return cmd
}

func executeOneShot(cmd *cobra.Command, cfg *Config, opts *runOptions, prompt string) error {
	c, err := client.New(cfg.Server, cfg.APIKey, opts.timeout)
	if err != nil {
		return err
	}
	req := client.RunRequest{
		Prompt: prompt,
		System: opts.system,
		Model:  opts.model,
		Apply:  opts.apply,
	}
	out := cmd.OutOrStdout()

	if opts.async {
		id, err := c.Start(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id)
		return nil
	}

	resp, err := c.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	printResult(out, resp.Result, opts.raw)
	for _, a := range resp.Applied {
		fmt.Fprintln(out, styleApplied(a))
	}
	if resp.Result.Status != "success" {
		return fmt.Errorf("run %s: %s", resp.Result.Status, resp.Result.Error)
	}
	return nil
}

func printResult(w io.Writer, res *client.RunResult, raw bool) {
	if raw {
		fmt.Fprintln(w, res.Text)
	} else {
		fmt.Fprint(w, renderMarkdown(res.Text, 100))
	}
	names := make([]string, 0, len(res.FileEdits))
	for name := range res.FileEdits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(w, styleFileEdit(name, res.FileEdits[name]))
	}
	fmt.Fprintln(w, styleSubtitle.Render(fmt.Sprintf("session %s (%s)", res.SessionID, res.Status)))
}

// stdinIsTerminal reports whether stdin is attached to a terminal.
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
