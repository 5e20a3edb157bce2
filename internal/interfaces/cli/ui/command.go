// Package ui wires the "ui" subcommand. The HTML/JS web frontend is
// built and deployed separately from this service; the subcommand exists
// only so the CLI names every subcommand operators expect, rather than
// silently omitting one.
package ui

import (
	"github.com/spf13/cobra"
)

// NewCommand builds the "ui" command. It always fails fast instead of
// attempting to serve any frontend assets.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "(not implemented) serve the HTML/JS web frontend",
		Long:  `The HTML/JS web frontend, its OpenID login flow, and the JSON REST facade it depends on are built and deployed separately from this service. This subcommand exists only so the CLI surface is complete; it does not serve anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.PrintErrln("ui: the web frontend is not served by this binary")
			return errNotImplemented
		},
	}
}

var errNotImplemented = uiNotImplementedError{}

type uiNotImplementedError struct{}

func (uiNotImplementedError) Error() string {
	return "ui subcommand does not serve the web frontend"
}
