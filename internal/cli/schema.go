package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rollbear/crpcut/internal/catalog"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the catalog format",
		Long: `Print the JSON Schema that YAML and JSON catalogs are validated against.
Editors can use it for completion and inline checks.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			data, err := catalog.GenerateJSONSchema()
			if err != nil {
				return formatter.commandError(ErrCodeGeneric, "generating schema", err)
			}
			data = append(data, '\n')

			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return formatter.commandError(ErrCodeGeneric, "writing schema", err)
			}
			formatter.VerboseLog("Schema written to %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to this file instead of stdout")

	return cmd
}
