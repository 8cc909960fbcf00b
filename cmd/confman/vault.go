package main

import (
	"github.com/spf13/cobra"
)

// newEncryptCommand creates the encrypt subcommand: encrypt every
// marked field in a document.
func newEncryptCommand(a *app) *cobra.Command {
	var (
		formatName string
		output     string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "encrypt <file>",
		Short: "Encrypt sensitive fields in a configuration file",
		Long: `Encrypt replaces the value of every sensitive field with its
encrypted form. Fields are sensitive when their name carries the
configured suffix (default "_secret") or their path is listed in the
vault markers. Already-encrypted fields are left untouched, so the
operation is idempotent.

The vault key is read from the environment variable or key file named
in the settings; it is never part of any configuration document.

Example:
  CONFMAN_KEY=passphrase confman encrypt config.yaml
  confman encrypt -o config.enc.yaml config.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := a.requireVault()
			if err != nil {
				return err
			}
			doc, err := readDocument(args[0], formatName)
			if err != nil {
				return err
			}
			tree, err := v.EncryptFields(doc.Root, a.markers())
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

// newDecryptCommand creates the decrypt subcommand.
func newDecryptCommand(a *app) *cobra.Command {
	var (
		formatName string
		output     string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "decrypt <file>",
		Short: "Decrypt sensitive fields in a configuration file",
		Long: `Decrypt replaces every encrypted sensitive field with its plaintext
value. Decryption with the wrong key or over tampered ciphertext fails
with an error naming the field; the input document is never modified.

Example:
  CONFMAN_KEY=passphrase confman decrypt config.enc.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			v, err := a.requireVault()
			if err != nil {
				return err
			}
			doc, err := readDocument(args[0], formatName)
			if err != nil {
				return err
			}
			tree, err := v.DecryptFields(doc.Root, a.markers())
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
