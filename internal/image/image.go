// Package image holds the encrypted-filesystem manifest: which logical files
// belong to the synchronized set, under which opaque names their blobs are
// stored, and the timestamps the reconciliation engine compares.
//
// The manifest exists in two on-disk forms. Locally it is plaintext TOML at
// .sync/image.toml inside the working tree. Remotely it is the same TOML run
// through the crypto envelope and stored as the blob named "image" in the
// opaque tree.
package image

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"symsync/internal/crypto"
	errs "symsync/internal/errors"
)

// Well-known names. SyncDir lives at the working-tree root and is skipped by
// the walker; RemoteName is the sentinel blob in the opaque tree.
const (
	SyncDir    = ".sync"
	LocalName  = "image.toml"
	RemoteName = "image"
)

// HexBytes is a byte slice that serializes to TOML as a lowercase hex
// string, used for the image key and per-entry IVs.
type HexBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexBytes) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*h = b
	return nil
}

// Entry is the metadata for one tracked file.
type Entry struct {
	// Name is the logical path relative to the working-tree root,
	// slash-separated.
	Name string `toml:"name"`
	// NameHash is the keyed hash of Name under the image key; it names the
	// opaque blob.
	NameHash string `toml:"namehash"`
	// Modified is the working-tree mtime (UNIX seconds) at the moment this
	// entry was last synchronized, including pulls. It is the "last seen"
	// baseline, local to this machine.
	Modified int64 `toml:"modified"`
	// ActuallyModified is the moment the content last changed. It travels
	// between machines with the metadata and is the authoritative
	// content-version clock.
	ActuallyModified int64 `toml:"actually_modified"`
	// Signature is the keyed hash of the file plaintext, verified after
	// decryption.
	Signature string `toml:"signature"`
	// IV is the CBC initialization vector used for this blob's last write.
	IV HexBytes `toml:"iv"`
}

// Image is the manifest: the image key H plus one Entry per tracked file.
type Image struct {
	LastUpdate int64    `toml:"last_update"`
	SipHashKey HexBytes `toml:"siphashkey"`
	Filesystem []Entry  `toml:"filesystem"`
}

// New returns an empty image with a fresh random key H. The master
// encryption key from config has nothing to do with this key.
func New() (*Image, error) {
	h, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Image{SipHashKey: h}, nil
}

// LocalPath returns the plaintext manifest path under the working-tree root.
func LocalPath(root string) string {
	return filepath.Join(root, SyncDir, LocalName)
}

// LoadLocal reads the plaintext TOML serialization.
func LoadLocal(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNoLocalImage
		}
		return nil, errs.NewFileError("read", path, err)
	}
	var im Image
	if err := toml.Unmarshal(data, &im); err != nil {
		return nil, errs.Wrap(err, "parsing local image")
	}
	return &im, nil
}

// LoadRemote reads the encrypted image blob from the opaque tree, decrypts
// it with the master key and parses it.
func LoadRemote(gpath string, key []byte) (*Image, error) {
	path := filepath.Join(gpath, RemoteName)
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNoRemoteImage
		}
		return nil, errs.NewFileError("read", path, err)
	}
	data, err := crypto.Open(blob, key)
	if err != nil {
		return nil, errs.Wrap(err, "decrypting remote image")
	}
	var im Image
	if err := toml.Unmarshal(data, &im); err != nil {
		return nil, errs.Wrap(err, "parsing remote image")
	}
	return &im, nil
}

// SaveLocal writes the plaintext TOML serialization, creating the .sync
// directory if needed.
func (im *Image) SaveLocal(path string) error {
	data, err := toml.Marshal(im)
	if err != nil {
		return errs.Wrap(err, "serializing image")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errs.NewFileError("mkdir", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errs.NewFileError("write", path, err)
	}
	return nil
}

// SaveRemote serializes the image, encrypts it with the master key and
// writes the enveloped blob named "image" into the opaque tree.
func (im *Image) SaveRemote(gpath string, key []byte) error {
	data, err := toml.Marshal(im)
	if err != nil {
		return errs.Wrap(err, "serializing image")
	}
	blob, _, err := crypto.Seal(data, key)
	if err != nil {
		return err
	}
	path := filepath.Join(gpath, RemoteName)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return errs.NewFileError("write", path, err)
	}
	return nil
}

// Lookup returns the entry for the given logical name, or nil.
func (im *Image) Lookup(name string) *Entry {
	for i := range im.Filesystem {
		if im.Filesystem[i].Name == name {
			return &im.Filesystem[i]
		}
	}
	return nil
}

// Upsert computes the name hash and content signature from the current image
// key, stamps both timestamps from modTime (the working-tree file's mtime at
// sync), and inserts or replaces the entry for name. LastUpdate is refreshed.
func (im *Image) Upsert(name string, content, iv []byte, modTime time.Time) *Entry {
	entry := Entry{
		Name:             name,
		NameHash:         crypto.NameHash(name, im.SipHashKey),
		Modified:         modTime.Unix(),
		ActuallyModified: modTime.Unix(),
		Signature:        crypto.Sign(content, im.SipHashKey),
		IV:               append(HexBytes{}, iv...),
	}
	im.touch()
	for i := range im.Filesystem {
		if im.Filesystem[i].Name == name {
			im.Filesystem[i] = entry
			return &im.Filesystem[i]
		}
	}
	im.Filesystem = append(im.Filesystem, entry)
	return &im.Filesystem[len(im.Filesystem)-1]
}

// Adopt inserts or replaces an entry copied from a remote image, keeping its
// signature, IV and content clock but stamping Modified from the just-written
// local file's mtime. This is the bookkeeping half of a pull: the next run
// must see the working file as "not newer than last sync".
func (im *Image) Adopt(remote Entry, modTime time.Time) {
	remote.Modified = modTime.Unix()
	im.touch()
	for i := range im.Filesystem {
		if im.Filesystem[i].Name == remote.Name {
			im.Filesystem[i] = remote
			return
		}
	}
	im.Filesystem = append(im.Filesystem, remote)
}

// Remove drops the entry for name, reporting whether it existed.
func (im *Image) Remove(name string) bool {
	for i := range im.Filesystem {
		if im.Filesystem[i].Name == name {
			im.Filesystem = append(im.Filesystem[:i], im.Filesystem[i+1:]...)
			im.touch()
			return true
		}
	}
	return false
}

// Rekey replaces the image key with h and recomputes every entry's name
// hash.
//
// Content signatures also depend on the image key but are NOT recomputed
// here; doing so would require reading every working file. After Rekey the
// image is trusted for the name-hash mapping only, and signatures refresh as
// reconciliation touches each file's content.
func (im *Image) Rekey(h []byte) {
	im.SipHashKey = append(HexBytes{}, h...)
	for i := range im.Filesystem {
		im.Filesystem[i].NameHash = crypto.NameHash(im.Filesystem[i].Name, im.SipHashKey)
	}
}

// Names returns the logical names of all entries.
func (im *Image) Names() []string {
	names := make([]string, len(im.Filesystem))
	for i := range im.Filesystem {
		names[i] = im.Filesystem[i].Name
	}
	return names
}

// HashNames returns the set of opaque blob names the image accounts for.
func (im *Image) HashNames() map[string]struct{} {
	set := make(map[string]struct{}, len(im.Filesystem))
	for i := range im.Filesystem {
		set[im.Filesystem[i].NameHash] = struct{}{}
	}
	return set
}

func (im *Image) touch() {
	im.LastUpdate = time.Now().Unix()
}
