package main

import (
	"fmt"

	"github.com/koscakluka/livescribe/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := config.SchemaJSON()
		if err != nil {
			return fmt.Errorf("failed to render schema: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
		return err
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DeepgramAPIKey != "" {
			cfg.DeepgramAPIKey = "********"
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *cfg)
		return err
	},
}

func init() {
	configCmd.AddCommand(configSchemaCmd)
	configCmd.AddCommand(configShowCmd)
}
