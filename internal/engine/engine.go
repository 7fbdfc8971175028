// Package engine implements the reconciliation engine: the three top-level
// modes (blind-push, blind-pull, update) and the per-file decision logic
// that compares the working tree, the local image and the remote image.
//
// The engine is single-threaded and sequential. It assumes the process
// working directory is the working-tree root (the CLI chdirs there before
// anything else) and that it has exclusive access to the working tree, the
// opaque tree and the remote for the duration of a run.
package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"symsync/internal/config"
	"symsync/internal/crypto"
	errs "symsync/internal/errors"
	"symsync/internal/fileops"
	"symsync/internal/image"
	"symsync/internal/transport"
)

// localBackupSuffix is appended to a working file displaced by a conflict
// pull, so the user can merge the two versions by hand.
const localBackupSuffix = "_local_backup"

// Reporter delivers user-facing output and confirmation prompts. The CLI
// supplies a styled terminal implementation; tests supply their own.
type Reporter interface {
	// Actionf reports a sync action being taken (push, pull, delete).
	Actionf(format string, args ...any)
	// Warnf reports a conflict or a tamper warning.
	Warnf(format string, args ...any)
	// Confirm asks a yes/no question and reports the answer. Implementations
	// should default to "no" when no interactive answer can be obtained.
	Confirm(prompt string) (bool, error)
}

// nopReporter discards output and denies every confirmation.
type nopReporter struct{}

func (nopReporter) Actionf(string, ...any)       {}
func (nopReporter) Warnf(string, ...any)         {}
func (nopReporter) Confirm(string) (bool, error) { return false, nil }

// Engine holds the state of one reconciliation run.
type Engine struct {
	cfg      *config.Config
	reporter Reporter

	local  *image.Image
	remote *image.Image

	// acted records whether any action touched the tracked set; an update
	// run that did nothing skips the image rewrite and the push.
	acted bool
	// rekeyed records an adopted remote image key, which must persist in
	// the local image even when nothing else changed.
	rekeyed bool
}

// New creates an engine for one run. A nil reporter discards all output and
// answers "no" to every prompt.
func New(cfg *config.Config, reporter Reporter) *Engine {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Engine{cfg: cfg, reporter: reporter}
}

// localImagePath is relative to the working-tree root, which is the process
// working directory for the whole run.
func localImagePath() string {
	return image.LocalPath(".")
}

// pushFile encrypts the working-tree file, writes its blob into the opaque
// tree under its name hash, and inserts or updates the local image entry.
func (e *Engine) pushFile(name string) error {
	content, err := os.ReadFile(name)
	if err != nil {
		return errs.NewFileError("read", name, err)
	}
	mod, err := fileops.ModTime(name)
	if err != nil {
		return err
	}
	blob, iv, err := crypto.Seal(content, e.cfg.Key)
	if err != nil {
		return err
	}
	entry := e.local.Upsert(name, content, iv, time.Unix(mod, 0))
	if err := fileops.WriteFile(filepath.Join(e.cfg.GPath, entry.NameHash), blob); err != nil {
		return err
	}
	slog.Debug("pushed blob", "name", name, "namehash", entry.NameHash, "size", len(blob))
	return nil
}

// fetch reads the blob for a remote entry, decrypts it and verifies its
// signature under the remote image key. Nothing on disk is modified; a
// tampered blob is rejected before it can displace a working file.
func (e *Engine) fetch(re image.Entry) ([]byte, error) {
	path := filepath.Join(e.cfg.GPath, re.NameHash)
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewFileError("read", path, err)
	}
	content, err := crypto.Open(blob, e.cfg.Key)
	if err != nil {
		return nil, err
	}
	if !crypto.Verify(re.Signature, content, e.remote.SipHashKey) {
		return nil, errs.ErrSignatureMismatch
	}
	return content, nil
}

// install writes fetched content to the working tree and records the entry
// in the local image, with Modified stamped from the just-written file's
// mtime and the content clock carried over from the remote entry.
func (e *Engine) install(re image.Entry, content []byte) error {
	if err := fileops.WriteFile(re.Name, content); err != nil {
		return err
	}
	mod, err := fileops.ModTime(re.Name)
	if err != nil {
		return err
	}
	e.local.Adopt(re, time.Unix(mod, 0))
	slog.Debug("pulled blob", "name", re.Name, "namehash", re.NameHash)
	return nil
}

// pullEntry fetches and installs a remote entry.
func (e *Engine) pullEntry(re image.Entry) error {
	content, err := e.fetch(re)
	if err != nil {
		return err
	}
	return e.install(re, content)
}

// pullOrWarn pulls a remote entry, downgrading per-file decryption and
// signature failures to a loud warning so the rest of the run continues.
// The working file is never overwritten by a blob that failed verification.
func (e *Engine) pullOrWarn(re image.Entry) error {
	err := e.pullEntry(re)
	switch {
	case err == nil:
		e.acted = true
		return nil
	case errs.Is(err, errs.ErrSignatureMismatch), errs.Is(err, errs.ErrCorruptBlob):
		e.reporter.Warnf("skipping %s: %v", re.Name, err)
		slog.Error("blob rejected", "name", re.Name, "err", err)
		return nil
	default:
		return err
	}
}

// commit persists the local image and, when push is true, re-encrypts it
// into the opaque tree and runs the push transport command.
func (e *Engine) commit(push bool) error {
	if err := e.local.SaveLocal(localImagePath()); err != nil {
		return err
	}
	if !push {
		return nil
	}
	if err := e.local.SaveRemote(e.cfg.GPath, e.cfg.Key); err != nil {
		return err
	}
	return e.runPush()
}

func (e *Engine) runPull() error {
	return transport.Run(e.cfg.CommandPull, e.cfg.GPath)
}

func (e *Engine) runPush() error {
	return transport.Run(e.cfg.CommandPush, e.cfg.GPath)
}
