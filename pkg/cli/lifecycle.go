package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed an empty account with the default catalog and settings",
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
			seeded, err := a.Transfer.InitializeDefaults(cmd.Context(), accountID)
			if err != nil {
				return err
			}
			if seeded {
				fmt.Fprintf(e.out, "seeded %s\n", accountID)
			} else {
				fmt.Fprintf(e.out, "%s already has entities, nothing seeded\n", accountID)
			}
			return nil
		},
	}
}

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy local store data into the remote gateway",
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
			n, err := a.Transfer.MigrateLocal(cmd.Context(), accountID)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "migrated %d documents into %s\n", n, accountID)
			return nil
		},
	}
}

func newResetCmd(e *env) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every entity and restore the default catalog and settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := e.requireAccount()
			if err != nil {
				return err
			}
			if !yes {
				return errors.New("reset deletes all account data; pass --yes to confirm")
			}
			a, err := e.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Transfer.ResetAll(cmd.Context(), accountID); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "reset %s\n", accountID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
