package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/pkg/config"
)

var schemaFile string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate a JSON schema for the config file",
	Long: `Emit a JSON schema describing every configuration field.

Point an editor or CI validation at the schema to get autocompletion
and early feedback on config typos.

Examples:
  # Print to stdout
  triplex config schema

  # Write next to the config for editors that pick it up
  triplex config schema --output config.schema.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		schema := r.Reflect(&config.Config{})
		schema.Version = "https://json-schema.org/draft/2020-12/schema"
		schema.Title = "Triplex Configuration"
		schema.Description = "Configuration schema for the Triplex server"

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to generate schema: %w", err)
		}
		data = append(data, '\n')

		if schemaFile == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(schemaFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaFile)
		return nil
	},
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaFile, "output", "o", "", "Output file (default: stdout)")
}
