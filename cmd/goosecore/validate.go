package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/goosecore/agentcore/config"
)

// ValidateConfigCmd loads path the same way RunCmd would, prints either a
// plain success line or (with --print-config) the fully expanded
// configuration, and exits non-zero on any load/validate failure. Grounded
// on the teacher's cmd/hector validate.go ValidateCmd.
type ValidateConfigCmd struct {
	Config      string `arg:"" name:"config" help:"Configuration file path." type:"path"`
	PrintConfig bool   `name:"print-config" short:"p" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateConfigCmd) Run(cli *CLI) error {
	_ = config.LoadEnvFiles()

	cfg, err := config.Load(c.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid: %v\n", c.Config, err)
		return fmt.Errorf("config validation failed")
	}

	if c.PrintConfig {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		return nil
	}

	fmt.Printf("%s: valid\n", c.Config)
	return nil
}
