package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/orgadmin/pkg/transfer"
)

func newExportCmd(e *env) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the account bundle as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := e.requireAccount()
			if err != nil {
				return err
			}
			a, err := e.open(cmd)
			if err != nil {
				return err
			}

			w := e.out
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return a.Transfer.WriteTo(cmd.Context(), accountID, w)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newImportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the account data with a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := e.requireAccount()
			if err != nil {
				return err
			}

			var r io.Reader = e.in
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open bundle: %w", err)
				}
				defer f.Close()
				r = f
			}
			bundle, err := transfer.Decode(r)
			if err != nil {
				return err
			}

			a, err := e.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Transfer.Import(cmd.Context(), accountID, bundle); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "imported %d entities and %d permissions into %s\n",
				len(bundle.Entities), len(bundle.Permissions), accountID)
			return nil
		},
	}
	return cmd
}
