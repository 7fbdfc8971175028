package engine

import (
	"bytes"
	"os"
	"path/filepath"

	errs "symsync/internal/errors"
	"symsync/internal/fileops"
	"symsync/internal/image"
)

// Update reconciles the working tree against the local and remote images.
//
// Per-file, three views exist: W (the working-tree file and its mtime), L
// (the local image entry) and R (the remote image entry). The walk covers
// every W, loadMissing catches remote-only additions (R without L), and
// cleanImage catches local deletions (L without W). If anything changed,
// both image forms are rewritten, orphan blobs are collected, and the push
// command runs; otherwise the push is skipped entirely.
func (e *Engine) Update() error {
	if err := e.runPull(); err != nil {
		return err
	}

	local, err := image.LoadLocal(localImagePath())
	if err != nil {
		return err
	}
	remote, err := image.LoadRemote(e.cfg.GPath, e.cfg.Key)
	if err != nil {
		return err
	}
	e.local, e.remote = local, remote

	if err := e.reconcileImageKey(); err != nil {
		return err
	}

	names, err := fileops.Walk(".")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := e.reconcile(name); err != nil {
			return err
		}
	}
	if err := e.loadMissing(); err != nil {
		return err
	}
	if err := e.cleanImage(); err != nil {
		return err
	}

	if !e.acted {
		e.reporter.Actionf("nothing to be done")
		if e.rekeyed {
			// The adopted key must survive even a no-op run, or the next
			// update prompts again.
			return e.local.SaveLocal(localImagePath())
		}
		return nil
	}

	if err := e.local.SaveLocal(localImagePath()); err != nil {
		return err
	}
	if err := e.local.SaveRemote(e.cfg.GPath, e.cfg.Key); err != nil {
		return err
	}
	if err := e.cleanRemote(); err != nil {
		return err
	}
	return e.runPush()
}

// reconcileImageKey aligns the local image key with the remote one. They
// diverge when another machine ran blindpush, which regenerates the key; the
// remote key wins, after the user confirms.
func (e *Engine) reconcileImageKey() error {
	if bytes.Equal(e.local.SipHashKey, e.remote.SipHashKey) {
		return nil
	}
	e.reporter.Warnf("the name-hash key differs between the remote and local image, " +
		"probably because a blindpush on another machine regenerated it")
	ok, err := e.reporter.Confirm("continue with the remote key? This is recommended")
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrAborted
	}
	e.reporter.Actionf("updating the local image with the remote key")
	e.local.Rekey(e.remote.SipHashKey)
	e.rekeyed = true
	return nil
}

// reconcile applies the decision table to one working-tree file.
func (e *Engine) reconcile(name string) error {
	mod, err := fileops.ModTime(name)
	if err != nil {
		return err
	}
	le := e.local.Lookup(name)
	re := e.remote.Lookup(name)

	switch {
	case le != nil && re != nil:
		switch {
		case mod > le.Modified && le.ActuallyModified < re.ActuallyModified:
			return e.conflict(name, *re)
		case mod > le.Modified:
			// Edited here since the last sync, unchanged remotely.
			e.reporter.Actionf("pushing %s", name)
			if err := e.pushFile(name); err != nil {
				return err
			}
			e.acted = true
		case le.ActuallyModified < re.ActuallyModified:
			// Unchanged here, newer content remotely.
			e.reporter.Actionf("pulling %s", name)
			return e.pullOrWarn(*re)
		}
		// Equal clocks on both sides: nothing to do.

	case le != nil:
		// Tracked here but gone from the remote image. Only delete when the
		// remote image is demonstrably newer than the file; otherwise the
		// situation is ambiguous and the file is left alone.
		if mod < e.remote.LastUpdate {
			e.reporter.Actionf("deleting %s (removed remotely)", name)
			if err := os.Remove(name); err != nil {
				return errs.NewFileError("remove", name, err)
			}
			e.local.Remove(name)
			e.acted = true
		}

	case re != nil:
		// Created here while the same name already exists remotely. No safe
		// automatic choice exists; report and let the user pick a side.
		e.reporter.Warnf("%s was created locally but already exists remotely; "+
			"delete or rename one of the two and run update again", name)

	default:
		e.reporter.Actionf("pushing new file %s", name)
		if err := e.pushFile(name); err != nil {
			return err
		}
		e.acted = true
	}
	return nil
}

// conflict handles a two-sided edit: the remote version is pulled over the
// file, and the local version is kept beside it for a manual merge. The
// remote blob is fetched and verified first so a bad blob cannot displace
// the local file.
func (e *Engine) conflict(name string, re image.Entry) error {
	e.reporter.Warnf("conflict: %s was updated both locally and remotely", name)
	content, err := e.fetch(re)
	if err != nil {
		if errs.Is(err, errs.ErrSignatureMismatch) || errs.Is(err, errs.ErrCorruptBlob) {
			e.reporter.Warnf("skipping %s: %v", name, err)
			return nil
		}
		return err
	}
	backup := name + localBackupSuffix
	if err := os.Rename(name, backup); err != nil {
		return errs.NewFileError("rename", name, err)
	}
	if err := e.install(re, content); err != nil {
		return err
	}
	e.acted = true
	e.reporter.Warnf("%s was pulled and your local version backed up as %s; "+
		"please merge the two manually and run update again", name, backup)
	return nil
}

// loadMissing pulls every remote entry that has no local image entry yet:
// files added on another machine since the last sync. An untracked file
// already sitting at the same name is never overwritten; the walk has
// already reported it as a local-creation conflict.
func (e *Engine) loadMissing() error {
	for _, re := range e.remote.Filesystem {
		if e.local.Lookup(re.Name) != nil {
			continue
		}
		if _, err := os.Lstat(re.Name); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return errs.NewFileError("stat", re.Name, err)
		}
		e.reporter.Actionf("pulling new file %s", re.Name)
		if err := e.pullOrWarn(re); err != nil {
			return err
		}
	}
	return nil
}

// cleanImage drops local image entries whose working-tree file is gone:
// files deleted here since the last sync. The check stats the file at pass
// time so entries just written by loadMissing are never dropped. The remote
// blob itself is collected later by cleanRemote.
func (e *Engine) cleanImage() error {
	for _, name := range e.local.Names() {
		if _, err := os.Lstat(name); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return errs.NewFileError("stat", name, err)
		}
		e.reporter.Actionf("forgetting %s (deleted locally)", name)
		e.local.Remove(name)
		e.acted = true
	}
	return nil
}

// cleanRemote removes opaque blobs the local image no longer accounts for,
// keeping the sentinel image blob. After this pass the opaque tree holds
// exactly {image} plus one blob per entry.
func (e *Engine) cleanRemote() error {
	entries, err := os.ReadDir(e.cfg.GPath)
	if err != nil {
		return errs.NewFileError("readdir", e.cfg.GPath, err)
	}
	keep := e.local.HashNames()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == image.RemoteName {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		e.reporter.Actionf("removing orphan blob %s", name)
		path := filepath.Join(e.cfg.GPath, name)
		if err := os.Remove(path); err != nil {
			return errs.NewFileError("remove", path, err)
		}
	}
	return nil
}
