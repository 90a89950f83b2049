package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// task wraps a devtool step into a cobra command.
func task(use, short string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(); err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			return nil
		},
	}
}

func TestCmd() *cobra.Command {
	return task("test", "Run unit tests, including the simulated bus suites", test.Test)
}

func LintCmd() *cobra.Command {
	return task("lint", "Run linters", test.Lint)
}

// IntegrationTestCmd runs the suites that need a real I2C bus and serial port.
func IntegrationTestCmd() *cobra.Command {
	return task("integration-test", "Run tests against attached hardware", test.Integ)
}
