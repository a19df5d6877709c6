package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"mathbot/pkg/render"

	"github.com/spf13/cobra"
)

// sandboxExecCmd is started by the renderer for every toolchain child. It applies the limit
// profile to its own process and then replaces itself with the tool. Flags are parsed by hand so
// that every failure, including bad usage, exits with the sandbox setup status.
var sandboxExecCmd = &cobra.Command{
	Use:                "sandbox-exec --profile <json> -- <tool> [args...]",
	Short:              "Run a toolchain command under a resource-limit profile",
	Hidden:             true,
	DisableFlagParsing: true,
	Run: func(cmd *cobra.Command, args []string) {
		profile, argv, err := parseSandboxArgs(args)
		if err == nil {
			err = render.RunSandboxHelper(profile, argv)
		}

		fmt.Fprintf(os.Stderr, "sandbox-exec: %v\n", err)
		os.Exit(render.SandboxSetupExitCode)
	},
}

func init() {
	rootCmd.AddCommand(sandboxExecCmd)
}

func parseSandboxArgs(args []string) (string, []string, error) {
	var profile string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			if profile == "" {
				return "", nil, errors.New("--profile is required")
			}
			if i+1 >= len(args) {
				return "", nil, errors.New("missing command after --")
			}
			return profile, args[i+1:], nil
		case arg == "--profile":
			if i+1 >= len(args) {
				return "", nil, errors.New("--profile requires a value")
			}
			i++
			profile = args[i]
		case strings.HasPrefix(arg, "--profile="):
			profile = strings.TrimPrefix(arg, "--profile=")
		default:
			return "", nil, fmt.Errorf("unexpected argument %q", arg)
		}
	}

	return "", nil, errors.New("missing -- before the command")
}
