// Package cli provides the command-line interface for symsync.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"hermannm.dev/devlog"

	"symsync/internal/config"
	"symsync/internal/crypto"
	"symsync/internal/engine"
	errs "symsync/internal/errors"
)

// Version is set by main.go
var Version = "dev"

var (
	debug    bool
	logLevel slog.LevelVar
)

// rootCmd is the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "symsync",
	Short: "Symmetric folder synchronization over an untrusted server",
	Long: `symsync synchronizes a folder between machines through a dumb remote
blob store that is never trusted with plaintext. Files are encrypted with
AES-256-CBC under a pre-shared key, their names are replaced by keyed
hashes, and their sizes are masked with random padding. An encrypted
image file tracks the metadata so only changed files are transferred.

The remote is reached through the push/pull shell commands configured in
.sync/config.toml inside the working tree. MYSYNCPATH must point at the
working-tree root.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug {
			logLevel.Set(slog.LevelDebug)
		}
	},
}

// Execute runs the CLI and returns the process exit code. Zero or unknown
// arguments print the usage message and exit 0; runtime errors exit 1.
func Execute(version string) int {
	Version = version
	rootCmd.Version = version

	if len(os.Args) < 2 {
		_ = rootCmd.Help()
		return 0
	}
	switch os.Args[1] {
	case "blindpush", "blindpull", "update", "help", "--help", "-h", "--version":
	default:
		_ = rootCmd.Help()
		return 0
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		return 1
	}
	return 0
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stderr, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// newEngine enters the working tree named by MYSYNCPATH, loads the config
// and builds an engine for one run. The returned cleanup zeros the master
// key and must run on every exit path.
func newEngine() (*engine.Engine, func(), error) {
	root := os.Getenv("MYSYNCPATH")
	if root == "" {
		return nil, nil, errs.ErrSyncPathUnset
	}
	if err := os.Chdir(root); err != nil {
		return nil, nil, errs.NewFileError("chdir", root, err)
	}

	cfg, err := config.Load(config.Path("."))
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("configuration loaded",
		"workingtree", root,
		"gpath", cfg.GPath,
		"keyfingerprint", crypto.Fingerprint(cfg.Key))

	return engine.New(cfg, newReporter()), cfg.Close, nil
}
