// symsync synchronizes a folder between machines over an untrusted server.
//
// Every machine holds two trees: the plaintext working tree the user edits,
// and an opaque tree of encrypted, length-padded, hash-named blobs that is
// safe to hand to any dumb blob store. A pre-shared 256-bit key is the only
// trust anchor; the remote is reached through user-configured push/pull
// shell commands and never sees a filename, a file size, or a byte of
// plaintext.
package main

import (
	"os"

	"symsync/internal/cli"
)

// version is the application version reported by --version.
const version = "v0.2.0"

func main() {
	os.Exit(cli.Execute(version))
}
