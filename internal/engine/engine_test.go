package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symsync/internal/config"
	"symsync/internal/crypto"
	errs "symsync/internal/errors"
	"symsync/internal/image"
)

// testReporter records engine output and answers every prompt the same way.
type testReporter struct {
	actions []string
	warns   []string
	confirm bool
}

func (r *testReporter) Actionf(format string, args ...any) {
	r.actions = append(r.actions, fmt.Sprintf(format, args...))
}

func (r *testReporter) Warnf(format string, args ...any) {
	r.warns = append(r.warns, fmt.Sprintf(format, args...))
}

func (r *testReporter) Confirm(string) (bool, error) {
	return r.confirm, nil
}

func (r *testReporter) saidAction(substr string) bool {
	for _, a := range r.actions {
		if strings.Contains(a, substr) {
			return true
		}
	}
	return false
}

func (r *testReporter) saidWarn(substr string) bool {
	for _, w := range r.warns {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

// machine is one synchronized working tree. Machines under test share one
// opaque tree directory and use no-op transport commands, which behaves like
// a remote that is always perfectly in sync.
type machine struct {
	t    *testing.T
	root string
	cfg  *config.Config
}

func newMachine(t *testing.T, gpath string) *machine {
	t.Helper()
	return &machine{
		t:    t,
		root: t.TempDir(),
		cfg: &config.Config{
			Key:         make([]byte, crypto.KeySize),
			GPath:       gpath,
			CommandPull: "true",
			CommandPush: "true",
		},
	}
}

func (m *machine) runWith(confirm bool, op func(*Engine) error) (*testReporter, error) {
	m.t.Helper()
	m.t.Chdir(m.root)
	rep := &testReporter{confirm: confirm}
	return rep, op(New(m.cfg, rep))
}

func (m *machine) blindpush() (*testReporter, error) {
	return m.runWith(true, (*Engine).BlindPush)
}

func (m *machine) blindpull() (*testReporter, error) {
	return m.runWith(true, (*Engine).BlindPull)
}

func (m *machine) update() (*testReporter, error) {
	return m.runWith(true, (*Engine).Update)
}

func (m *machine) write(rel, content string) {
	m.t.Helper()
	path := filepath.Join(m.root, filepath.FromSlash(rel))
	require.NoError(m.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(m.t, os.WriteFile(path, []byte(content), 0o644))
}

func (m *machine) read(rel string) string {
	m.t.Helper()
	data, err := os.ReadFile(filepath.Join(m.root, filepath.FromSlash(rel)))
	require.NoError(m.t, err)
	return string(data)
}

func (m *machine) exists(rel string) bool {
	_, err := os.Lstat(filepath.Join(m.root, filepath.FromSlash(rel)))
	return err == nil
}

func (m *machine) remove(rel string) {
	m.t.Helper()
	require.NoError(m.t, os.Remove(filepath.Join(m.root, filepath.FromSlash(rel))))
}

// touch moves a file's mtime, standing in for the >= 1 s wall-clock wait a
// real edit would need for the timestamp to tick.
func (m *machine) touch(rel string, at time.Time) {
	m.t.Helper()
	path := filepath.Join(m.root, filepath.FromSlash(rel))
	require.NoError(m.t, os.Chtimes(path, at, at))
}

func (m *machine) localImage() *image.Image {
	m.t.Helper()
	im, err := image.LoadLocal(filepath.Join(m.root, image.SyncDir, image.LocalName))
	require.NoError(m.t, err)
	return im
}

func gpathNames(t *testing.T, gpath string) []string {
	t.Helper()
	entries, err := os.ReadDir(gpath)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// setupPair runs the initial blind-push on machine a and a blind-pull on
// machine b: two machines, two files, fully synchronized.
func setupPair(t *testing.T) (a, b *machine, gpath string) {
	t.Helper()
	gpath = filepath.Join(t.TempDir(), "opaque")

	a = newMachine(t, gpath)
	a.write("a.txt", "hello")
	a.write("sub/b.txt", "world")
	_, err := a.blindpush()
	require.NoError(t, err)

	b = newMachine(t, gpath)
	_, err = b.blindpull()
	require.NoError(t, err)
	return a, b, gpath
}

func TestBlindPushThenBlindPull(t *testing.T) {
	a, b, gpath := setupPair(t)

	// The opaque tree holds the image sentinel plus one blob per file, and
	// nothing readable.
	names := gpathNames(t, gpath)
	assert.Len(t, names, 3)
	assert.Contains(t, names, image.RemoteName)

	assert.Equal(t, a.read("a.txt"), b.read("a.txt"))
	assert.Equal(t, a.read("sub/b.txt"), b.read("sub/b.txt"))
	assert.True(t, b.exists(".sync/image.toml"))

	// Both images track the same set under the same name-hash key.
	ia, ib := a.localImage(), b.localImage()
	assert.Equal(t, ia.SipHashKey, ib.SipHashKey)
	assert.ElementsMatch(t, ia.Names(), ib.Names())
}

func TestBlindPushRefusedWipe(t *testing.T) {
	gpath := filepath.Join(t.TempDir(), "opaque")
	a := newMachine(t, gpath)
	a.write("a.txt", "hello")
	_, err := a.blindpush()
	require.NoError(t, err)

	_, err = a.runWith(false, (*Engine).BlindPush)
	assert.ErrorIs(t, err, errs.ErrAborted)
}

func TestUpdatePropagatesEdit(t *testing.T) {
	a, b, _ := setupPair(t)

	a.write("a.txt", "HELLO")
	a.touch("a.txt", time.Now().Add(2*time.Second))
	rep, err := a.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("pushing a.txt"), "actions: %v", rep.actions)

	rep, err = b.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("pulling a.txt"), "actions: %v", rep.actions)
	assert.Equal(t, "HELLO", b.read("a.txt"))

	// After a pull the entry's Modified matches the on-disk mtime, so the
	// next run sees nothing to do.
	for _, entry := range b.localImage().Filesystem {
		mod, statErr := os.Stat(filepath.Join(b.root, filepath.FromSlash(entry.Name)))
		require.NoError(t, statErr)
		assert.EqualValues(t, entry.Modified, mod.ModTime().Unix(), entry.Name)
	}
}

func TestSecondUpdateIsNoop(t *testing.T) {
	a, _, _ := setupPair(t)

	a.write("a.txt", "HELLO")
	a.touch("a.txt", time.Now().Add(2*time.Second))
	_, err := a.update()
	require.NoError(t, err)

	// A run with nothing to do must skip the push entirely: a push command
	// that fails proves it was never invoked.
	a.cfg.CommandPush = "false"
	rep, err := a.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("nothing to be done"), "actions: %v", rep.actions)
}

func TestConcurrentEditConflict(t *testing.T) {
	a, b, _ := setupPair(t)

	a.write("a.txt", "from A")
	a.touch("a.txt", time.Now().Add(2*time.Second))
	_, err := a.update()
	require.NoError(t, err)

	b.write("a.txt", "from B")
	b.touch("a.txt", time.Now().Add(2*time.Second))
	rep, err := b.update()
	require.NoError(t, err, "a conflict is not an error")

	assert.Equal(t, "from A", b.read("a.txt"))
	assert.Equal(t, "from B", b.read("a.txt_local_backup"))
	assert.True(t, rep.saidWarn("updated both locally and remotely"), "warns: %v", rep.warns)
	assert.True(t, rep.saidWarn("merge"), "warns: %v", rep.warns)
}

func TestLocalDeletePropagates(t *testing.T) {
	a, b, gpath := setupPair(t)

	a.remove("sub/b.txt")
	rep, err := a.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("forgetting sub/b.txt"), "actions: %v", rep.actions)

	// Orphan blob collected: the opaque tree is exactly the sentinel plus
	// one blob per remaining entry.
	ia := a.localImage()
	require.Len(t, ia.Filesystem, 1)
	want := []string{image.RemoteName}
	for hash := range ia.HashNames() {
		want = append(want, hash)
	}
	assert.ElementsMatch(t, want, gpathNames(t, gpath))

	// The other machine deletes its copy: the file predates the remote
	// image that no longer tracks it.
	b.touch("sub/b.txt", time.Now().Add(-time.Hour))
	rep, err = b.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("deleting sub/b.txt"), "actions: %v", rep.actions)
	assert.False(t, b.exists("sub/b.txt"))
	assert.Len(t, b.localImage().Filesystem, 1)

	// And everything is stable afterwards.
	rep, err = a.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("nothing to be done"), "actions: %v", rep.actions)
}

func TestTamperDetection(t *testing.T) {
	a, _, gpath := setupPair(t)

	entry := a.localImage().Lookup("a.txt")
	require.NotNil(t, entry)
	blobPath := filepath.Join(gpath, entry.NameHash)
	blob, err := os.ReadFile(blobPath)
	require.NoError(t, err)
	blob[0] ^= 0xff
	require.NoError(t, os.WriteFile(blobPath, blob, 0o600))

	// A fresh machine pulls everything; the tampered blob is rejected and
	// never reaches the working tree, and the run continues.
	c := newMachine(t, gpath)
	rep, err := c.blindpull()
	require.NoError(t, err)

	assert.False(t, c.exists("a.txt"))
	assert.Equal(t, "world", c.read("sub/b.txt"))
	assert.True(t, rep.saidWarn("a.txt"), "warns: %v", rep.warns)
}

func TestLocalCreationShadowedByRemote(t *testing.T) {
	_, _, gpath := setupPair(t)

	c := newMachine(t, gpath)
	c.write("a.txt", "mine")
	_, err := c.blindpull()
	require.NoError(t, err)
	assert.Equal(t, "mine", c.read("a.txt"), "blindpull must not overwrite an existing file")

	rep, err := c.update()
	require.NoError(t, err)
	assert.True(t, rep.saidWarn("created locally but already exists remotely"), "warns: %v", rep.warns)
	assert.Equal(t, "mine", c.read("a.txt"))
	assert.False(t, c.exists("a.txt_local_backup"))
}

func TestNewFilePropagates(t *testing.T) {
	a, b, _ := setupPair(t)

	b.write("sub/new.txt", "fresh")
	rep, err := b.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("pushing new file sub/new.txt"), "actions: %v", rep.actions)

	rep, err = a.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("pulling new file sub/new.txt"), "actions: %v", rep.actions)
	assert.Equal(t, "fresh", a.read("sub/new.txt"))
}

func TestImageKeyRotation(t *testing.T) {
	a, b, _ := setupPair(t)

	// A second blindpush regenerates the name-hash key, so b's image
	// disagrees with the remote until the user adopts the remote key.
	_, err := a.blindpush()
	require.NoError(t, err)

	rep, err := b.update()
	require.NoError(t, err)
	assert.True(t, rep.saidAction("updating the local image with the remote key"), "actions: %v", rep.actions)
	assert.Equal(t, a.localImage().SipHashKey, b.localImage().SipHashKey)
	assert.Equal(t, "hello", b.read("a.txt"))
}

func TestImageKeyRotationRefused(t *testing.T) {
	a, b, _ := setupPair(t)

	_, err := a.blindpush()
	require.NoError(t, err)

	_, err = b.runWith(false, (*Engine).Update)
	assert.ErrorIs(t, err, errs.ErrAborted)
}

func TestUpdateWithoutLocalImage(t *testing.T) {
	_, _, gpath := setupPair(t)

	c := newMachine(t, gpath)
	_, err := c.update()
	assert.ErrorIs(t, err, errs.ErrNoLocalImage)
}

func TestFailingTransportAbortsRun(t *testing.T) {
	a, _, _ := setupPair(t)

	a.cfg.CommandPull = "false"
	_, err := a.update()
	require.Error(t, err)
	var te *errs.TransportError
	assert.True(t, errs.As(err, &te))
}
