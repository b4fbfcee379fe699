package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

// relationsOpts holds the command-line flags for the relations command.
type relationsOpts struct {
	limit   int
	cursor  string
	all     bool // follow cursors until a short page
	noCache bool
	refresh bool
	jsonOut bool
}

// relationsCommand creates the relations command, which prints raw relation
// records of one account.
func (c *CLI) relationsCommand() *cobra.Command {
	var opts relationsOpts

	cmd := &cobra.Command{
		Use:   "relations <address|link>",
		Short: "List relation records of an account",
		Long: `List the relation records the explorer holds for an account, newest first.

Each record connects the account to one counter-party and carries the relation
kinds in both directions (creator, merge, payments) and payment counts.`,
		Example: `  relgraph relations GABC...
  relgraph relations GABC... --limit 200 --all
  relgraph relations GABC... --cursor 123456 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseAccountArg(args[0])
			if err != nil {
				return err
			}
			if opts.limit == 0 {
				opts.limit = c.cfg.API.PageSize
			}
			return c.runRelations(cmd.Context(), address, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "records per page (default from config)")
	cmd.Flags().StringVar(&opts.cursor, "cursor", "", "start after this paging token")
	cmd.Flags().BoolVar(&opts.all, "all", false, "fetch every page")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the page cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached pages and store fresh ones")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print records as JSON")

	return cmd
}

func (c *CLI) runRelations(ctx context.Context, address string, opts relationsOpts) error {
	client, closeFn, err := c.newClient(ctx, opts.noCache, opts.refresh)
	if err != nil {
		return err
	}
	defer closeFn()

	prog := newProgress(c.Logger)
	records, next, err := fetchRelations(ctx, client, address, opts)
	if err != nil {
		return err
	}
	prog.done("relations loaded", "account", graph.ShortAddress(address), "records", len(records))

	if opts.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(relations.Page{Records: records, Next: next})
	}

	fmt.Println(relationsTable(address, records))
	if next != "" {
		printNextStep("More relations", fmt.Sprintf("%s relations %s --cursor %s", appName, address, next))
	}
	return nil
}

// fetchRelations reads one page, or every page with opts.all. next is the
// cursor to continue from, empty once the stream is exhausted.
func fetchRelations(ctx context.Context, f graph.Fetcher, address string, opts relationsOpts) (records []relations.Record, next string, err error) {
	cursor := opts.cursor
	records = []relations.Record{}
	for {
		page, err := f.FetchRelations(ctx, address, opts.limit, cursor)
		if err != nil {
			return nil, "", err
		}
		records = append(records, page.Records...)
		if len(page.Records) < opts.limit {
			return records, "", nil
		}
		cursor = page.LastCursor()
		if !opts.all {
			return records, cursor, nil
		}
	}
}

// relationsTable renders records from the point of view of address.
func relationsTable(address string, records []relations.Record) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		peer, _ := r.Other(address)
		out, in := graph.SplitMask(r.Type)
		sent, received := r.Transfers[0], r.Transfers[1]
		if r.Accounts[0] != address {
			out, in = in, out
			sent, received = received, sent
		}
		rows = append(rows, []string{
			r.PagingToken,
			graph.ShortAddress(peer),
			dash(out.String()),
			dash(in.String()),
			strconv.FormatInt(sent, 10) + " / " + strconv.FormatInt(received, 10),
			r.CreatedAt().Format("2006-01-02"),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Cursor", "Peer", "Outgoing", "Incoming", "Payments out/in", "Since").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle
			case col == 1:
				return StyleHighlight
			case col == 0 || col == 5:
				return StyleDim
			}
			return StyleValue
		}).
		Render()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
