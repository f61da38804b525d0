// Command svcidl resolves service interface declarations and speaks their
// canonical CBOR wire format.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/svcidl/internal/cli"
	"github.com/roach88/svcidl/internal/idl"
)

func main() {
	root := cli.NewRootCommand()
	root.Version = idl.BuildVersion

	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
