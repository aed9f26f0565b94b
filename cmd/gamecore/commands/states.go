package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roasbeef/gamecore/internal/baselib/actor"
)

var (
	// stateKind filters listings to one component kind.
	stateKind string
)

// statesCmd groups the state inspection subcommands.
var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Inspect persisted component state",
}

// statesListCmd lists persisted state blobs.
var statesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted state blobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.Queries.ListStates(
			cmd.Context(), stateKind,
		)
		if err != nil {
			return err
		}

		if len(rows) == 0 {
			fmt.Println("no persisted state")
			return nil
		}

		fmt.Printf("%-24s %-24s %10s  %s\n",
			"KIND", "ACTOR", "BYTES", "UPDATED")
		for _, row := range rows {
			id := actor.ID(uint64(row.ID))
			fmt.Printf("%-24s %-24s %10d  %s\n",
				row.Kind, id, row.Size,
				row.UpdatedAt.Format("2006-01-02 15:04:05"),
			)
		}

		return nil
	},
}

// statesShowCmd dumps one state blob as its byte length plus the full
// blob in hex.
var statesShowCmd = &cobra.Command{
	Use:   "show <kind> <state-id>",
	Short: "Show a single persisted state blob",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad state id %q: %w", args[1], err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		data, found, err := store.LoadByID(
			cmd.Context(), args[0], id,
		)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no state for %s/%d", args[0], id)
		}

		fmt.Printf("kind:  %s\n", args[0])
		fmt.Printf("actor: %s\n", actor.ID(uint64(id)))
		fmt.Printf("bytes: %d\n", len(data))
		fmt.Printf("data:  %x\n", data)

		return nil
	},
}

func init() {
	statesListCmd.Flags().StringVar(
		&stateKind, "kind", "", "Filter by component kind",
	)

	statesCmd.AddCommand(statesListCmd)
	statesCmd.AddCommand(statesShowCmd)
	rootCmd.AddCommand(statesCmd)
}
