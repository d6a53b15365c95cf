// Command goosecore is the CLI for the goosecore runtime: an interactive
// reply loop over stdin/stdout (run), a Builtin Tool Endpoint hosted as a
// stdio JSON-RPC server for re-exec-style extension wiring (serve), and a
// standalone configuration checker (validate-config). Grounded on the
// teacher's cmd/hector layout (one file per subcommand, kong.Parse wiring
// them together in main).
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	goosecore "github.com/goosecore/agentcore"
)

// CLI is the top-level kong command tree.
type CLI struct {
	Run            RunCmd            `cmd:"" help:"Start an interactive reply loop against a configured provider."`
	Serve          ServeCmd          `cmd:"" help:"Host one builtin extension as a stdio JSON-RPC Tool Endpoint."`
	ValidateConfig ValidateConfigCmd `cmd:"" name:"validate-config" help:"Load and validate a configuration file without starting the loop."`
	Version        VersionCmd        `cmd:"" help:"Show version information."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log output format (text or json)." default:"text" enum:"text,json"`
}

// VersionCmd prints build version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(goosecore.GetVersion().String())
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("goosecore"),
		kong.Description("goosecore - an AI coding agent's runtime core"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
