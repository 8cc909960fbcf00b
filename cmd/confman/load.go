package main

import (
	"github.com/spf13/cobra"

	"github.com/confman-io/confman/internal/schema"
)

// newLoadCommand creates the load subcommand: the full read pipeline
// (parse, resolve, merge, validate) without committing anything.
func newLoadCommand(a *app) *cobra.Command {
	var (
		schemaPath string
		strict     bool
		formatName string
		output     string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "load <file> [file...]",
		Short: "Load layered configuration and print the merged result",
		Long: `Load parses the given configuration files (lowest precedence first),
resolves environment variable references, merges them and optionally
validates the result against a schema. Nothing is committed.

Example:
  confman load base.yaml production.yaml
  confman load --schema schema.yaml --output toml base.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sch *schema.Schema
			if schemaPath != "" {
				var err error
				if sch, err = loadSchema(schemaPath); err != nil {
					return err
				}
			}

			sources, err := readSources(args, formatName)
			if err != nil {
				return err
			}

			p, err := a.newPipeline(sch, strict)
			if err != nil {
				return err
			}
			outcome, err := p.Run(cmd.Context(), sources, "", false)
			if err != nil {
				return err
			}
			return writeTree(outcome.Tree, output, out)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema file to validate against")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject fields absent from the schema")
	cmd.Flags().StringVarP(&formatName, "format", "f", "", "input format (default: detect from extension)")
	cmd.Flags().StringVarP(&output, "output", "O", "json", "output format: json, yaml, toml or ini")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to file instead of stdout")

	return cmd
}

// newConvertCommand creates the convert subcommand: reserialize one
// document in another format.
func newConvertCommand(a *app) *cobra.Command {
	var (
		formatName string
		to         string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a configuration file to another format",
		Long: `Convert parses one configuration file and reserializes it in the
target format. Conversions into TOML or INI may narrow the document;
narrowings are documented per format and applied deterministically.

Example:
  confman convert --to toml config.yaml
  confman convert --to json -o config.json config.ini`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			doc, err := readDocument(args[0], formatName)
			if err != nil {
				return err
			}
			return writeTree(doc.Root, to, out)
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "", "input format (default: detect from extension)")
	cmd.Flags().StringVar(&to, "to", "json", "target format: json, yaml, toml or ini")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to file instead of stdout")

	return cmd
}

// newTemplateCommand creates the template subcommand: generate a
// skeleton document from a schema.
func newTemplateCommand(a *app) *cobra.Command {
	var (
		output string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "template <schema-file>",
		Short: "Generate a skeleton configuration from a schema",
		Long: `Template reads a schema definition and prints a configuration
skeleton with every field present at its zero value, ready to be filled
in. Constrained string fields use their first allowed value.

Example:
  confman template schema.yaml
  confman template --output yaml -o config.yaml schema.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sch, err := loadSchema(args[0])
			if err != nil {
				return err
			}
			return writeTree(schema.Template(sch), output, out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "O", "json", "output format: json, yaml, toml or ini")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to file instead of stdout")

	return cmd
}
