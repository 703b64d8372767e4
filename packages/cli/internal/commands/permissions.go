package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewPermissionsCmd manages tool calls waiting for approval on the server.
func NewPermissionsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "permissions",
		Aliases: []string{"perms"},
		Short:   "Review pending tool permissions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			reqs, err := c.Permissions(cmd.Context())
			if err != nil {
				return err
			}
			if len(reqs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), styleSubtitle.Render("no pending requests"))
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTOOL\tPERMISSION\tARGUMENTS")
			for _, r := range reqs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RequestID, r.ToolName, r.Permission, r.Arguments)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(newRespondCmd(cfg, "approve", "approved", true), newRespondCmd(cfg, "deny", "denied", false))
	return cmd
}

func newRespondCmd(cfg *Config, use, done string, approved bool) *cobra.Command {
	var always bool
	cmd := &cobra.Command{
		Use:   use + " <request-id>",
		Short: fmt.Sprintf("Mark a pending tool call as %s", done),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			if err := c.RespondPermission(cmd.Context(), args[0], approved, always); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&always, "always", false, "Remember the decision for this tool category")
	return cmd
}
