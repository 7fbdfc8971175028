package engine

import (
	"log/slog"
	"os"

	"symsync/internal/crypto"
	errs "symsync/internal/errors"
	"symsync/internal/fileops"
	"symsync/internal/image"
)

// BlindPush initializes or resets the remote from this machine's working
// tree: the working tree is truth, and whatever the opaque tree held before
// is discarded (after confirmation). A fresh image key is generated, so a
// blind-push rotates the entire name mapping.
func (e *Engine) BlindPush() error {
	if err := e.wipeOpaqueTree(); err != nil {
		return err
	}

	local, err := image.New()
	if err != nil {
		return err
	}
	e.local = local
	slog.Debug("created image", "keyfingerprint", crypto.Fingerprint(local.SipHashKey))

	names, err := fileops.Walk(".")
	if err != nil {
		return err
	}
	for _, name := range names {
		e.reporter.Actionf("adding %s", name)
		if err := e.pushFile(name); err != nil {
			return err
		}
	}

	return e.commit(true)
}

// wipeOpaqueTree empties the opaque tree after user confirmation, then
// recreates the directory. An absent or already-empty tree needs no
// confirmation.
func (e *Engine) wipeOpaqueTree() error {
	entries, err := os.ReadDir(e.cfg.GPath)
	if err != nil && !os.IsNotExist(err) {
		return errs.NewFileError("readdir", e.cfg.GPath, err)
	}
	if len(entries) > 0 {
		ok, err := e.reporter.Confirm("opaque tree " + e.cfg.GPath + " is not empty. Delete everything in it?")
		if err != nil {
			return err
		}
		if !ok {
			return errs.ErrAborted
		}
		e.reporter.Actionf("deleting files in %s", e.cfg.GPath)
		if err := os.RemoveAll(e.cfg.GPath); err != nil {
			return errs.NewFileError("remove", e.cfg.GPath, err)
		}
	}
	if err := os.MkdirAll(e.cfg.GPath, 0o700); err != nil {
		return errs.NewFileError("mkdir", e.cfg.GPath, err)
	}
	return nil
}
