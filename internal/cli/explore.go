package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/stellar-expert/relgraph/pkg/graph"
)

// exploreOpts holds the command-line flags for the explore command.
type exploreOpts struct {
	snapshot string // snapshot id to reopen instead of an account
	noCache  bool
	refresh  bool
}

// exploreCommand creates the explore command, an interactive terminal view
// of the relation graph.
func (c *CLI) exploreCommand() *cobra.Command {
	var opts exploreOpts

	cmd := &cobra.Command{
		Use:   "explore [address|link]",
		Short: "Explore account relations interactively",
		Long: `Explore account relations interactively.

Starts at the given account (or shareable link, or saved snapshot) and lists
its counter-parties. Show or hide them, follow them to their own relations and
load further pages as you go; the shareable link of the last selection is
printed on exit.`,
		Example: `  relgraph explore GABC...
  relgraph explore "https://stellar.expert/explorer/public/account-relations#GABC..."
  relgraph explore --snapshot 4b0e...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case opts.snapshot != "" && len(args) > 0:
				return fmt.Errorf("pass either an account or --snapshot, not both")
			case opts.snapshot == "" && len(args) == 0:
				return fmt.Errorf("an account address or link is required")
			}
			address := ""
			if len(args) == 1 {
				a, err := parseAccountArg(args[0])
				if err != nil {
					return err
				}
				address = a
			}
			return c.runExplore(cmd.Context(), address, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "reopen a saved snapshot")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the page cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached pages and store fresh ones")

	return cmd
}

func (c *CLI) runExplore(ctx context.Context, address string, opts *exploreOpts) error {
	var snap *graph.Snapshot
	if opts.snapshot != "" {
		s, err := c.loadSnapshot(ctx, opts.snapshot)
		if err != nil {
			return err
		}
		if s.Network != "" && s.Network != c.cfg.API.Network {
			printInfo("Snapshot was taken on %s", StyleHighlight.Render(s.Network))
			c.cfg.API.Network = s.Network
		}
		snap = s
	}

	client, closeFn, err := c.newClient(ctx, opts.noCache, opts.refresh)
	if err != nil {
		return err
	}
	defer closeFn()

	loc := graph.NewMemoryLocation(address)
	st := c.newState(client, loc)
	defer st.Close()

	if snap != nil {
		if err := st.Restore(snap); err != nil {
			return err
		}
	} else if _, _, err := st.InitFromLocation(ctx); err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Every(c.cfg.Server.FetchInterval.Duration), c.cfg.Server.FetchBurst)
	save := func(ctx context.Context) (string, error) {
		store, err := c.newStore(ctx)
		if err != nil {
			return "", err
		}
		defer store.Close()
		s := st.Snapshot()
		s.Network = c.cfg.API.Network
		return store.Save(ctx, s)
	}

	m, cancel := NewExploreModel(ctx, st, limiter, save)
	defer cancel()
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return err
	}

	if fragment := loc.Fragment(); fragment != "" {
		printInfo("Share this view")
		printLink(shareLink(c.cfg.API.Network, fragment))
	}
	return nil
}

// loadSnapshot reads a snapshot from the configured store.
func (c *CLI) loadSnapshot(ctx context.Context, id string) (*graph.Snapshot, error) {
	store, err := c.newStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(ctx, id)
}

// explorerURL is the web explorer that serves shareable graph links.
const explorerURL = "https://stellar.expert/explorer"

// shareLink returns the web link that opens the graph at fragment.
func shareLink(network, fragment string) string {
	return fmt.Sprintf("%s/%s/account-relations#%s", explorerURL, network, fragment)
}
