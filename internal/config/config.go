// Package config loads the per-tree configuration from .sync/config.toml.
package config

import (
	"encoding/hex"
	"path/filepath"

	"github.com/spf13/viper"

	"symsync/internal/crypto"
	errs "symsync/internal/errors"
	"symsync/internal/image"
)

// Config holds the user configuration for one working tree.
type Config struct {
	// Key is the 256-bit master key K, decoded from key_hex.
	Key []byte
	// GPath is the absolute path of the opaque tree.
	GPath string
	// CommandPull fetches the opaque tree from the remote (run with GPath
	// as working directory).
	CommandPull string
	// CommandPush publishes the opaque tree to the remote.
	CommandPush string
}

// Path returns the config file location under the working-tree root.
func Path(root string) string {
	return filepath.Join(root, image.SyncDir, "config.toml")
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errs.Wrap(err, "reading config")
	}

	cfg := &Config{
		GPath:       v.GetString("gpath"),
		CommandPull: v.GetString("command_pull"),
		CommandPush: v.GetString("command_push"),
	}

	keyHex := v.GetString("key_hex")
	if len(keyHex) != 2*crypto.KeySize {
		return nil, errs.ErrInvalidKey
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, errs.ErrInvalidKey
	}
	cfg.Key = key

	if cfg.GPath == "" {
		return nil, errs.NewConfigError("gpath", "missing path to the opaque tree")
	}
	if !filepath.IsAbs(cfg.GPath) {
		return nil, errs.NewConfigError("gpath", "must be an absolute path")
	}
	if cfg.CommandPull == "" {
		return nil, errs.NewConfigError("command_pull", "missing pull command")
	}
	if cfg.CommandPush == "" {
		return nil, errs.NewConfigError("command_push", "missing push command")
	}

	return cfg, nil
}

// Close zeros the master key. Call via defer once the run is finished.
func (c *Config) Close() {
	crypto.SecureZero(c.Key)
	c.Key = nil
}
