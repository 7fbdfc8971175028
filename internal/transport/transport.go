// Package transport invokes the user-supplied push/pull shell commands that
// move the opaque tree to and from the remote store. The command fully
// encapsulates the remote protocol; symsync only cares that it exits zero.
package transport

import (
	"log/slog"
	"os"
	"os/exec"
	"strings"

	errs "symsync/internal/errors"
)

// Run executes the user's command string with the opaque tree as working
// directory, creating the directory first if it does not exist. It blocks
// until the command finishes; no timeout is imposed.
//
// The command is split on the first space into the program and one combined
// argument. This is fragile for quoting but kept for behavioral fidelity
// with existing configs; use a wrapper script for anything complicated.
func Run(command, gpath string) error {
	if strings.TrimSpace(command) == "" {
		return errs.NewTransportError(command, errs.NewConfigError("command", "empty command string"))
	}
	if err := os.MkdirAll(gpath, 0o700); err != nil {
		return errs.NewFileError("mkdir", gpath, err)
	}

	prog, rest, hasArgs := strings.Cut(command, " ")
	var cmd *exec.Cmd
	if hasArgs {
		cmd = exec.Command(prog, rest)
	} else {
		cmd = exec.Command(prog)
	}
	cmd.Dir = gpath
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	slog.Debug("running transport command", "command", command, "dir", gpath)
	if err := cmd.Run(); err != nil {
		return errs.NewTransportError(command, err)
	}
	return nil
}
