package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"docqa/internal/config"
)

var configFlags struct {
	defaults bool
	write    string
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	f := configCmd.Flags()
	f.BoolVar(&configFlags.defaults, "defaults", false, "Print the built-in defaults instead of the effective config")
	f.StringVar(&configFlags.write, "write", "", "Also save the printed config to this path")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	c := cfg
	if configFlags.defaults {
		c = config.Default()
	}
	if err := c.Validate(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	if configFlags.write != "" {
		return config.Save(configFlags.write, c)
	}
	return nil
}
