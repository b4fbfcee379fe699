package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellar-expert/relgraph/pkg/graph"
)

const (
	defaultDepth = 1  // reveal direct counter-parties
	defaultPages = 1  // one page of relations per expanded account
	defaultLimit = 60 // stop revealing accounts beyond this many
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	output   string   // output file path (or base path for multiple outputs)
	formats  []string // output formats: "svg", "dot", "json"
	depth    int      // hops from the root to reveal
	pages    int      // pages of relations per expanded account
	maxNodes int      // cap on revealed accounts
	detailed bool     // label edges with relation kinds and payment counts
	save     bool     // store the explored graph as a snapshot
	noCache  bool
	refresh  bool
}

// renderCommand creates the render command, which grows the relation graph
// around an account and writes it out.
func (c *CLI) renderCommand() *cobra.Command {
	var formatsStr string
	opts := renderOpts{
		depth:    defaultDepth,
		pages:    defaultPages,
		maxNodes: defaultLimit,
	}

	cmd := &cobra.Command{
		Use:   "render <address|link>",
		Short: "Render the relation graph around an account",
		Long: `Render the relation graph around an account.

The account is selected and its counter-parties are revealed breadth-first up
to --depth hops, loading --pages pages of relations for every expanded account.
The displayed graph is written as SVG (Graphviz), DOT or the JSON consumed by
force-directed graph widgets.`,
		Example: `  relgraph render GABC...
  relgraph render GABC... --depth 2 --format svg,json -o graph
  relgraph render "https://stellar.expert/explorer/public/account-relations#GABC..." --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := parseAccountArg(args[0])
			if err != nil {
				return err
			}
			opts.formats = parseFormats(formatsStr)
			if err := validateFormats(opts.formats); err != nil {
				return err
			}
			return c.runRender(cmd.Context(), address, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), dot, json (comma-separated)")
	cmd.Flags().IntVarP(&opts.depth, "depth", "d", opts.depth, "hops from the account to reveal")
	cmd.Flags().IntVar(&opts.pages, "pages", opts.pages, "pages of relations to load per expanded account")
	cmd.Flags().IntVar(&opts.maxNodes, "max-nodes", opts.maxNodes, "stop revealing accounts beyond this many (0 = no limit)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label edges with relation kinds and payment counts")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the explored graph as a snapshot")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the page cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached pages and store fresh ones")

	return cmd
}

// parseFormats parses the --format flag into a slice of output formats.
// If empty, defaults to ["svg"].
func parseFormats(s string) []string {
	if s == "" {
		return []string{"svg"}
	}
	return strings.Split(s, ",")
}

// validFormats is the set of supported output formats.
var validFormats = map[string]bool{"svg": true, "dot": true, "json": true}

// validateFormats checks that all requested formats are valid.
func validateFormats(formats []string) error {
	for _, f := range formats {
		if !validFormats[f] {
			return fmt.Errorf("invalid format: %s (must be 'svg', 'dot' or 'json')", f)
		}
	}
	return nil
}

// basePath derives the base output path. Without -o it is named after the
// account; a known format extension on -o is stripped.
func basePath(output, address string) string {
	if output == "" {
		return "relations-" + strings.ToLower(address[:min(len(address), 8)])
	}
	ext := filepath.Ext(output)
	if validFormats[strings.TrimPrefix(ext, ".")] {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

// outputPath returns the file for one format: -o as given when a single
// format is requested, base.format otherwise.
func outputPath(opts *renderOpts, address, format string) string {
	if len(opts.formats) == 1 && opts.output != "" {
		return opts.output
	}
	return basePath(opts.output, address) + "." + format
}

func (c *CLI) runRender(ctx context.Context, address string, opts *renderOpts) error {
	logger := c.Logger
	client, closeFn, err := c.newClient(ctx, opts.noCache, opts.refresh)
	if err != nil {
		return err
	}
	defer closeFn()

	st := c.newState(client, nil)
	defer st.Close()

	label := fmt.Sprintf("Exploring %s", graph.ShortAddress(address))
	spinner := newSpinnerWithContext(ctx, label)
	unsubscribe := st.Subscribe(func(ev graph.Event) {
		if ev.Kind == graph.EventLinksLoaded {
			spinner.SetMessage(fmt.Sprintf("%s · %d accounts · %d links", label, st.NodeCount(), st.LinkCount()))
		}
	})
	spinner.Start()
	prog := newProgress(logger)
	_, err = st.Expand(ctx, address, graph.ExpandOptions{
		Depth:    opts.depth,
		Pages:    opts.pages,
		MaxNodes: opts.maxNodes,
	})
	unsubscribe()
	if err != nil {
		if spinner.Cancelled() {
			spinner.Stop()
			printWarning("Interrupted after loading %d accounts", st.NodeCount())
			return err
		}
		spinner.StopWithError(fmt.Sprintf("Exploring %s failed", graph.ShortAddress(address)))
		return err
	}
	spinner.Stop()
	data := st.GraphData()
	prog.done("graph explored", "accounts", st.NodeCount(), "shown", len(data.Nodes))
	printStats(len(data.Nodes), len(data.Links), st.NodeCount())

	for _, format := range opts.formats {
		out, err := renderData(ctx, st, format, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", format, err)
		}
		path := outputPath(opts, address, format)
		if err := writeOutput(path, out); err != nil {
			return err
		}
		logger.Debugf("Generated %s: %d bytes", format, len(out))
		printFile(path)
	}

	if opts.save {
		return c.saveSnapshot(ctx, st)
	}
	return nil
}

// renderData serializes the displayed graph in format.
func renderData(ctx context.Context, st *graph.State, format string, opts *renderOpts) ([]byte, error) {
	data := st.GraphData()
	dotOpts := graph.DOTOptions{Detailed: opts.detailed, ShortIDs: true}
	if sel := st.SelectedNode(); sel != nil {
		dotOpts.Selected = sel.ID()
	}

	switch format {
	case "json":
		return graph.MarshalData(data, st.SelectedNode())
	case "dot":
		return []byte(graph.ToDOT(data, dotOpts)), nil
	case "svg":
		return graph.RenderSVG(ctx, graph.ToDOT(data, dotOpts))
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
}

// saveSnapshot stores the explored graph and prints how to reopen it.
func (c *CLI) saveSnapshot(ctx context.Context, st *graph.State) error {
	store, err := c.newStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	snap := st.Snapshot()
	snap.Network = c.cfg.API.Network
	id, err := store.Save(ctx, snap)
	if err != nil {
		return err
	}
	printSuccess("Saved snapshot %s", StyleHighlight.Render(id))
	printNextStep("Reopen it", fmt.Sprintf("%s explore --snapshot %s", appName, id))
	return nil
}
