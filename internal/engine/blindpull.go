package engine

import (
	"os"

	errs "symsync/internal/errors"
	"symsync/internal/image"
)

// BlindPull initializes a fresh machine from the remote: pull the opaque
// tree, decrypt every tracked file that is not already present in the
// working tree, and build a local image adopting the remote image key.
func (e *Engine) BlindPull() error {
	if err := e.runPull(); err != nil {
		return err
	}

	remote, err := image.LoadRemote(e.cfg.GPath, e.cfg.Key)
	if err != nil {
		return err
	}
	e.remote = remote

	local, err := image.New()
	if err != nil {
		return err
	}
	local.Rekey(remote.SipHashKey)
	e.local = local

	for _, re := range remote.Filesystem {
		if _, err := os.Lstat(re.Name); err == nil {
			// An existing working file is never overwritten here; the next
			// update surfaces it as a local-creation conflict.
			continue
		} else if !os.IsNotExist(err) {
			return errs.NewFileError("stat", re.Name, err)
		}
		e.reporter.Actionf("pulling %s", re.Name)
		if err := e.pullOrWarn(re); err != nil {
			return err
		}
	}

	return e.commit(false)
}
