// Package cli implements the inquest command line client. It talks to a
// running inquest server rather than the workspace directly, so a terminal
// session needs no credentials beyond network access to the service.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	rootCmd := &cobra.Command{
		Use:   "inquest",
		Short: "Ask questions about your security data in plain language.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := cmd.Help()
			if err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var serverURL string
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server-url", "s", "http://localhost:8080", "Base URL of the inquest server")

	rootCmd.AddCommand(
		NewAskCmd(&serverURL).Command(),
	)

	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}

	return exitCodeSuccess
}
