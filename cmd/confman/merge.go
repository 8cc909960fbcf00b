package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/confman-io/confman/internal/envresolver"
	"github.com/confman-io/confman/internal/merge"
	"github.com/confman-io/confman/internal/pipeline"
)

// newMergeCommand creates the merge subcommand: merge layered sources
// and report every conflict decision.
func newMergeCommand(a *app) *cobra.Command {
	var (
		formatName    string
		output        string
		out           string
		showConflicts bool
	)

	cmd := &cobra.Command{
		Use:   "merge <file> <file> [file...]",
		Short: "Merge layered configuration sources",
		Long: `Merge combines the given sources in precedence order (lowest first):
mappings merge recursively, sequences and scalars are replaced wholesale
by the higher-precedence source. Every decision where sources disagreed
is recorded and can be printed with --show-conflicts.

Example:
  confman merge base.yaml production.yaml
  confman merge --show-conflicts base.json overrides.json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			sources, err := readSources(args, formatName)
			if err != nil {
				return err
			}

			result, err := merge.Merge(sources)
			if err != nil {
				return err
			}

			if showConflicts {
				for _, c := range result.Conflicts {
					fmt.Fprintf(os.Stderr, "conflict at %s: %s resolved by %s\n",
						c.Path, c.Resolution, c.Winner)
				}
			}
			return writeTree(result.Tree, output, out)
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "", "input format (default: detect from extension)")
	cmd.Flags().StringVarP(&output, "output", "O", "json", "output format: json, yaml, toml or ini")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to file instead of stdout")
	cmd.Flags().BoolVar(&showConflicts, "show-conflicts", false, "print merge conflicts to stderr")

	return cmd
}

// newValidateCommand creates the validate subcommand.
func newValidateCommand(a *app) *cobra.Command {
	var (
		schemaPath string
		strict     bool
		formatName string
	)

	cmd := &cobra.Command{
		Use:   "validate --schema <schema-file> <file> [file...]",
		Short: "Validate configuration against a schema",
		Long: `Validate merges the given sources and checks the result against the
schema. All violations are reported, not just the first; the exit code
is non-zero when any violation exists.

Example:
  confman validate --schema schema.yaml config.yaml
  confman validate --schema schema.yaml --strict base.yaml production.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sch, err := loadSchema(schemaPath)
			if err != nil {
				return err
			}
			sources, err := readSources(args, formatName)
			if err != nil {
				return err
			}

			p, err := a.newPipeline(sch, strict)
			if err != nil {
				return err
			}
			_, err = p.Run(cmd.Context(), sources, "", false)

			var verr *pipeline.ValidationError
			if errors.As(err, &verr) {
				for _, fe := range verr.Result.Errors {
					fmt.Println(fe.Error())
				}
				return fmt.Errorf("%d validation error(s)", len(verr.Result.Errors))
			}
			if err != nil {
				return err
			}

			fmt.Println("configuration is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema file to validate against (required)")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject fields absent from the schema")
	cmd.Flags().StringVarP(&formatName, "format", "f", "", "input format (default: detect from extension)")
	_ = cmd.MarkFlagRequired("schema") //nolint:errcheck // Flag is defined above

	return cmd
}

// newEnvCommand creates the env subcommand: resolve environment
// variable references in a single document.
func newEnvCommand(a *app) *cobra.Command {
	var (
		formatName string
		output     string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "env <file>",
		Short: "Resolve environment variable references",
		Long: `Env replaces ${VAR} and ${VAR:-default} references in string values
with the current process environment. A reference without a default for
an unset variable is an error naming the field and the variable.

Example:
  confman env config.yaml
  DB_HOST=db.internal confman env --output yaml config.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			doc, err := readDocument(args[0], formatName)
			if err != nil {
				return err
			}
			tree, err := envresolver.Resolve(doc.Root, envresolver.OS())
			if err != nil {
				return err
			}
			if output == "" {
				output = string(doc.Format)
			}
			return writeTree(tree, output, out)
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "", "input format (default: detect from extension)")
	cmd.Flags().StringVarP(&output, "output", "O", "", "output format (default: same as input)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write output to file instead of stdout")

	return cmd
}
