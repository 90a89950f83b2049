package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Exit codes returned by fcboard commands.
const (
	CodeUsage   = 1
	CodeFailure = 2
)

// Exit formats msg as a usage error.
func Exit(msg string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), CodeUsage)
}

// Fail reports a failed step with the cause highlighted.
func Fail(step string, err error) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf("%s: %s", step, Red(err)), CodeFailure)
}
