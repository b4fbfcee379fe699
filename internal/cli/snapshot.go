package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/storage"
)

// snapshotCommand creates the snapshot management command.
func (c *CLI) snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"snapshots"},
		Short:   "Manage saved graph snapshots",
	}

	cmd.AddCommand(c.snapshotListCommand())
	cmd.AddCommand(c.snapshotShowCommand())
	cmd.AddCommand(c.snapshotDeleteCommand())

	return cmd
}

// snapshotListCommand creates the "snapshot list" subcommand.
func (c *CLI) snapshotListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sums, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				printInfo("No snapshots saved")
				return nil
			}
			fmt.Println(snapshotTable(sums))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultListLimit, "maximum snapshots to list")
	return cmd
}

// snapshotShowCommand creates the "snapshot show" subcommand.
func (c *CLI) snapshotShowCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.loadSnapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printSnapshot(snap)
			printNextStep("Reopen it", fmt.Sprintf("%s explore --snapshot %s", appName, snap.ID))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full snapshot as JSON")
	return cmd
}

// snapshotDeleteCommand creates the "snapshot delete" subcommand.
func (c *CLI) snapshotDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved snapshot",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := c.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Deleted snapshot %s", args[0])
			return nil
		},
	}
}

func printSnapshot(snap *graph.Snapshot) {
	visible := 0
	for _, n := range snap.Nodes {
		if n.Visible {
			visible++
		}
	}
	printKeyValue("ID", snap.ID)
	printKeyValue("Network", dash(snap.Network))
	printKeyValue("Selected", dash(snap.Selected))
	printKeyValue("Accounts", fmt.Sprintf("%d (%d shown)", len(snap.Nodes), visible))
	printKeyValue("Links", strconv.Itoa(len(snap.Links)))
	printKeyValue("Created", snap.CreatedAt.Local().Format("2006-01-02 15:04:05"))
}

// snapshotTable renders snapshot summaries as a table.
func snapshotTable(sums []storage.Summary) string {
	rows := make([][]string, 0, len(sums))
	for _, s := range sums {
		selected := ""
		if s.Selected != "" {
			selected = graph.ShortAddress(s.Selected)
		}
		rows = append(rows, []string{
			s.ID,
			dash(s.Network),
			dash(selected),
			strconv.Itoa(s.Nodes),
			strconv.Itoa(s.Links),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Network", "Selected", "Accounts", "Links", "Created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle
			case col == 0:
				return lipgloss.NewStyle().Foreground(colorCyan)
			case col == 5:
				return lipgloss.NewStyle().Foreground(colorDim)
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		}).
		Render()
}
