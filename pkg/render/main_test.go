package render

import (
	"fmt"
	"os"
	"testing"
)

// sandboxHelperEnv makes the test binary act as the sandbox-exec helper, the way the mathbot
// binary does when started with the sandbox-exec subcommand.
const sandboxHelperEnv = "MATHBOT_TEST_SANDBOX_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(sandboxHelperEnv) == "1" {
		os.Exit(runTestSandboxHelper(os.Args[1:]))
	}

	os.Exit(m.Run())
}

func runTestSandboxHelper(args []string) int {
	if len(args) < 5 || args[0] != "sandbox-exec" || args[1] != "--profile" || args[3] != "--" {
		fmt.Fprintf(os.Stderr, "sandbox-exec: unexpected arguments %q\n", args)
		return SandboxSetupExitCode
	}

	err := RunSandboxHelper(args[2], args[4:])
	fmt.Fprintf(os.Stderr, "sandbox-exec: %v\n", err)
	return SandboxSetupExitCode
}
