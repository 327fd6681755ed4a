// Command ocibuilder builds OCI-compliant container images without a
// daemon: from/pull materialize a working container, run/copy/add
// mutate its writable top layer, and commit snapshots it into a new
// image.
package main

import "github.com/ocibuilder/ocibuilder/internal/cli"

func main() {
	cli.Execute()
}
