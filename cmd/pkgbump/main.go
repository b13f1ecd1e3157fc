// pkgbump bumps a Nix package to its latest upstream release.
package main

import "github.com/anthr76/pkgbump/cmd/pkgbump/cmd"

func main() {
	cmd.Execute()
}
