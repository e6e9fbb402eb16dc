package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
)

func newTreeCmd(e *env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the account hierarchy",
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
			recs, err := a.Remote.List(cmd.Context(), accountID, gateway.CollectionEntities)
			if err != nil {
				return err
			}
			entities, err := gateway.DecodeAll[hierarchy.Entity](recs)
			if err != nil {
				return err
			}
			if asJSON {
				return e.writeJSON(entities)
			}
			printTree(e.out, entities)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entities as JSON")
	return cmd
}

// printTree writes one line per entity, indented by depth. Entities whose
// parent is missing are printed at the top level.
func printTree(w io.Writer, entities []hierarchy.Entity) {
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[e.ID] = true
	}
	children := map[string][]hierarchy.Entity{}
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		parent := e.ParentID
		if !known[parent] {
			parent = ""
		}
		children[parent] = append(children[parent], e)
	}
	for _, list := range children {
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}

	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, e := range children[parent] {
			line := fmt.Sprintf("%s%s (%s)", strings.Repeat("  ", depth), e.Name, e.Type)
			if len(e.Permissions) > 0 {
				line += fmt.Sprintf(" [%d permissions]", len(e.Permissions))
			}
			fmt.Fprintln(w, line)
			walk(e.ID, depth+1)
		}
	}
	walk("", 0)
}

func newAccountsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts known to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd)
			if err != nil {
				return err
			}
			accounts, err := a.Accounts(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range accounts {
				fmt.Fprintln(e.out, id)
			}
			return nil
		},
	}
}

func newBackupCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up every account once to the configured sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd)
			if err != nil {
				return err
			}
			runner, err := a.BackupRunner(cmd.Context())
			if err != nil {
				return err
			}
			result, err := runner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return e.writeJSON(result)
		},
	}
}
