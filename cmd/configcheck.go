package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// envVars are reported by presence only; several are secrets.
var envVars = []string{
	config.EnvRPCEndpoint,
	config.EnvPrivateKey,
	config.EnvConcentratedGraph,
	config.EnvWeightedGraph,
	config.EnvSubgraphAPIKey,
	config.EnvLoanReceiver,
	config.EnvRedisAddr,
	config.EnvRedisPassword,
	config.EnvDatabaseURL,
	config.EnvPrivateRelayURL,
	config.EnvRelayAuthKey,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the configuration and print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		path := cfgFile
		if path == "" {
			p, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			path = p
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(out, "Config file: %s\n", path)
		} else {
			fmt.Fprintf(out, "Config file: %s (not found, using defaults)\n", path)
		}

		writeEnv(out, os.Getenv)

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		fmt.Fprintf(out, "\n%s", data)
		return nil
	},
}

func writeEnv(out io.Writer, getenv func(string) string) {
	fmt.Fprintln(out, "Environment:")
	for _, key := range envVars {
		state := "unset"
		if getenv(key) != "" {
			state = "set"
		}
		fmt.Fprintf(out, "  %-28s %s\n", key, state)
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
}
