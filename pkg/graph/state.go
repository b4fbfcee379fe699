package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/observability"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

// DefaultPageSize is the number of relations requested per page.
const DefaultPageSize = relations.DefaultPageSize

// ErrClosed is returned by commands issued after [State.Close].
var ErrClosed = apperrors.New(apperrors.ErrCodeClosed, "graph state is closed")

// Fetcher retrieves one page of relation records for an account.
// *relations.Client implements it.
type Fetcher interface {
	FetchRelations(ctx context.Context, address string, limit int, cursor string) (*relations.Page, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, address string, limit int, cursor string) (*relations.Page, error)

func (f FetcherFunc) FetchRelations(ctx context.Context, address string, limit int, cursor string) (*relations.Page, error) {
	return f(ctx, address, limit, cursor)
}

// Option configures a State.
type Option func(*State)

// WithPageSize sets the page size used by [State.PopulateNodeLinks].
// Values outside 1..200 are ignored.
func WithPageSize(n int) Option {
	return func(s *State) {
		if apperrors.ValidatePageSize(n) == nil {
			s.pageSize = n
		}
	}
}

// WithLogger sets the logger for background fetch failures and debug output.
func WithLogger(l *log.Logger) Option {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocation binds the state to a navigable location (deep links).
func WithLocation(loc Location) Option { return func(s *State) { s.location = loc } }

// State owns the node and link registries of one exploration session and the
// derived view of the visible subgraph.
type State struct {
	fetcher  Fetcher
	pageSize int
	logger   *log.Logger
	location Location

	mu        sync.RWMutex
	nodes     map[string]*Node
	links     map[string]*Link
	nodeOrder []*Node
	linkOrder []*Link
	selected  *Node
	hoverNode *Node
	hoverLink *Link
	data      *Data
	closed    bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	inflight singleflight.Group
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates an empty graph state backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *State {
	ctx, cancel := context.WithCancel(context.Background())
	s := &State{
		fetcher:  fetcher,
		pageSize: DefaultPageSize,
		logger:   log.Default(),
		nodes:    make(map[string]*Node),
		links:    make(map[string]*Link),
		data:     &Data{Nodes: []*Node{}, Links: []*Link{}},
		subs:     make(map[int]func(Event)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PageSize returns the configured page size.
func (s *State) PageSize() int { return s.pageSize }

// Close cancels background fetches and waits for them to finish. Commands
// issued afterwards fail with [ErrClosed]; accessors keep working.
func (s *State) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until all background fetches started by [State.SelectNode]
// have finished.
func (s *State) Wait() { s.wg.Wait() }

// =============================================================================
// Registration
// =============================================================================

// AddNode returns the node for address, creating and registering an
// invisible, unfetched node if it does not exist yet.
func (s *State) AddNode(address string) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNode(address)
}

func (s *State) addNode(address string) *Node {
	if n, ok := s.nodes[address]; ok {
		return n
	}
	n := newNode(s, address)
	s.nodes[address] = n
	s.nodeOrder = append(s.nodeOrder, n)
	return n
}

// AddLink returns the link for rec.ID, creating it if needed. Both accounts
// of the record must already be registered with [State.AddNode]. The link is
// not added to the endpoints' adjacency sets; [State.PopulateNodeLinks] does
// that when it applies a page.
func (s *State) AddLink(rec relations.Record) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLink(rec)
}

func (s *State) addLink(rec relations.Record) (*Link, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if l, ok := s.links[rec.ID]; ok {
		if err := l.matches(rec); err != nil {
			return nil, err
		}
		return l, nil
	}
	source, ok := s.nodes[rec.Accounts[0]]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeUnknownNode, "link %s: account %s is not registered", rec.ID, rec.Accounts[0])
	}
	target, ok := s.nodes[rec.Accounts[1]]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeUnknownNode, "link %s: account %s is not registered", rec.ID, rec.Accounts[1])
	}
	l := newLink(rec, source, target)
	s.links[l.id] = l
	s.linkOrder = append(s.linkOrder, l)
	return l, nil
}

// =============================================================================
// Commands
// =============================================================================

// Init makes sure a node exists for address and selects it.
func (s *State) Init(ctx context.Context, address string) (*Node, error) {
	n := s.AddNode(address)
	if err := s.SelectNode(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// InitFromLocation selects the account named by the location fragment.
// It reports false when no location is bound or the fragment is empty.
func (s *State) InitFromLocation(ctx context.Context) (*Node, bool, error) {
	if s.location == nil {
		return nil, false, nil
	}
	address := strings.TrimPrefix(s.location.Fragment(), "#")
	if address == "" {
		return nil, false, nil
	}
	n, err := s.Init(ctx, address)
	if err != nil {
		return nil, false, err
	}
	return n, true, nil
}

// SelectNode makes node visible, selected and hovered, writes its address to
// the bound location and starts fetching its first page of relations in the
// background. Selecting the current selection again does nothing.
//
// The background fetch keeps ctx's values but not its cancellation; it ends
// when the fetch completes or the state is closed. Failures are logged and
// reported as [EventFetchFailed].
func (s *State) SelectNode(ctx context.Context, node *Node) error {
	s.mu.Lock()
	if err := s.checkNode(node); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.selected == node {
		s.mu.Unlock()
		return nil
	}
	node.visible = true
	s.selected = node
	s.hoverNode = node
	s.updateGraphData()
	s.wg.Add(1)
	s.mu.Unlock()

	if s.location != nil {
		s.location.SetFragment(node.id)
	}
	s.emit(Event{Kind: EventSelect, Address: node.id})

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stop()
		if err := s.PopulateNodeLinks(bg, node); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("fetch relations failed", "address", node.id, "err", err)
			s.emit(Event{Kind: EventFetchFailed, Address: node.id})
		}
	}()
	return nil
}

// PopulateNodeLinks applies the next page of node's relations.
//
// It returns immediately when the node is exhausted. Otherwise it requests
// PageSize records after the node's cursor, registers the peers and links of
// every record, advances the cursor to the last record and marks the node
// exhausted if the page is short. Calls for a node that is already being
// fetched wait for that request instead of issuing another one.
//
// The shared request is bound to the state's lifetime rather than to the
// context of whichever caller started it. A caller whose ctx ends stops
// waiting and gets ctx.Err(); the request carries on for the others.
//
// On failure nothing changes, so the call can be repeated. No retry happens
// here; the Fetcher owns transport retries.
func (s *State) PopulateNodeLinks(ctx context.Context, node *Node) error {
	s.mu.RLock()
	err := s.checkNode(node)
	exhausted := err == nil && !node.canFetchMore
	s.mu.RUnlock()
	if err != nil || exhausted {
		return err
	}

	ch := s.inflight.DoChan(node.id, func() (any, error) {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()
		return nil, s.fetchPage(fctx, node)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *State) fetchPage(ctx context.Context, node *Node) error {
	s.mu.Lock()
	if !node.canFetchMore {
		s.mu.Unlock()
		return nil
	}
	node.fetching = true
	cursor := node.cursor
	s.mu.Unlock()

	hooks := observability.Fetch()
	hooks.OnFetchStart(ctx, node.id, cursor)
	start := time.Now()

	page, err := s.fetcher.FetchRelations(ctx, node.id, s.pageSize, cursor)
	if err == nil {
		err = validatePage(page, node.id)
	}

	s.mu.Lock()
	node.fetching = false
	switch {
	case err != nil:
	case s.closed:
		err = ErrClosed
	case s.nodes[node.id] != node:
		err = apperrors.New(apperrors.ErrCodeUnknownNode, "node %s was replaced by a restore", node.id)
	}
	if err == nil {
		err = s.checkKnownLinks(page)
	}
	if err != nil {
		s.mu.Unlock()
		hooks.OnFetchComplete(ctx, node.id, 0, time.Since(start), err)
		return fmt.Errorf("populate links of %s: %w", node.id, err)
	}

	for _, rec := range page.Records {
		s.addNode(rec.Accounts[0])
		s.addNode(rec.Accounts[1])
		l, err := s.addLink(rec)
		if err != nil {
			// Records before rec stay applied and the cursor points past them.
			s.updateGraphData()
			s.mu.Unlock()
			hooks.OnFetchComplete(ctx, node.id, 0, time.Since(start), err)
			return fmt.Errorf("populate links of %s: %w", node.id, err)
		}
		node.cursor = rec.PagingToken
		l.source.links[l.id] = l
		l.target.links[l.id] = l
	}
	node.queried = true
	if len(page.Records) < s.pageSize {
		node.canFetchMore = false
	}
	s.updateGraphData()
	s.mu.Unlock()

	hooks.OnFetchComplete(ctx, node.id, len(page.Records), time.Since(start), nil)
	s.logger.Debug("relations loaded", "address", node.id, "records", len(page.Records), "cursor", node.Cursor())
	s.emit(Event{Kind: EventLinksLoaded, Address: node.id})
	return nil
}

// checkKnownLinks rejects a page that reuses a registered link id for a
// different pair of accounts. Must be called with s.mu held.
func (s *State) checkKnownLinks(page *relations.Page) error {
	for _, rec := range page.Records {
		if l, ok := s.links[rec.ID]; ok {
			if err := l.matches(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func validatePage(page *relations.Page, address string) error {
	if page == nil {
		return apperrors.New(apperrors.ErrCodeInvalidRecord, "fetcher returned no page for %s", address)
	}
	return page.Validate(address)
}

// SetDisplayNodeState shows or hides node. Hiding the hovered node clears
// the hover highlight. No relations are fetched.
func (s *State) SetDisplayNodeState(node *Node, visible bool) error {
	s.mu.Lock()
	if err := s.checkNode(node); err != nil {
		s.mu.Unlock()
		return err
	}
	node.visible = visible
	if s.hoverNode == node {
		s.hoverNode = nil
	}
	s.updateGraphData()
	s.mu.Unlock()

	s.emit(Event{Kind: EventVisibility, Address: node.id})
	return nil
}

// SetHoverNode highlights node (nil clears). Unchanged values emit nothing.
func (s *State) SetHoverNode(node *Node) error {
	s.mu.Lock()
	if err := s.checkHoverNode(node); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.hoverNode == node {
		s.mu.Unlock()
		return nil
	}
	s.hoverNode = node
	s.mu.Unlock()

	s.emitHover(node)
	return nil
}

// SetHoverLink highlights link (nil clears). Unchanged values emit nothing.
func (s *State) SetHoverLink(link *Link) error {
	s.mu.Lock()
	if err := s.checkHoverLink(link); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.hoverLink == link {
		s.mu.Unlock()
		return nil
	}
	s.hoverLink = link
	s.mu.Unlock()

	s.emitHover(nil)
	return nil
}

// SetHover replaces both highlights in one step (nil clears). If either
// target is rejected neither highlight changes. At most one event is emitted.
func (s *State) SetHover(node *Node, link *Link) error {
	s.mu.Lock()
	err := s.checkHoverNode(node)
	if err == nil {
		err = s.checkHoverLink(link)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.hoverNode == node && s.hoverLink == link {
		s.mu.Unlock()
		return nil
	}
	s.hoverNode, s.hoverLink = node, link
	s.mu.Unlock()

	s.emitHover(node)
	return nil
}

func (s *State) checkHoverNode(node *Node) error {
	if node == nil {
		if s.closed {
			return ErrClosed
		}
		return nil
	}
	return s.checkNode(node)
}

func (s *State) checkHoverLink(link *Link) error {
	switch {
	case s.closed:
		return ErrClosed
	case link != nil && s.links[link.id] != link:
		return apperrors.New(apperrors.ErrCodeUnknownNode, "link %s is not registered", link.id)
	}
	return nil
}

func (s *State) emitHover(node *Node) {
	ev := Event{Kind: EventHover}
	if node != nil {
		ev.Address = node.id
	}
	s.emit(ev)
}

// checkNode validates a command target. Callers must hold s.mu.
func (s *State) checkNode(node *Node) error {
	if s.closed {
		return ErrClosed
	}
	if node == nil {
		return apperrors.New(apperrors.ErrCodeNodeNotFound, "node is nil")
	}
	if node.state != s || s.nodes[node.id] != node {
		return apperrors.New(apperrors.ErrCodeUnknownNode, "node %s does not belong to this graph", node.id)
	}
	return nil
}

// =============================================================================
// Accessors
// =============================================================================

// Node returns the registered node for address.
func (s *State) Node(address string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[address]
	return n, ok
}

// Link returns the registered link with the given id.
func (s *State) Link(id string) (*Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[id]
	return l, ok
}

func (s *State) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *State) LinkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// Nodes returns all registered nodes in registration order.
func (s *State) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Node(nil), s.nodeOrder...)
}

// Links returns all registered links in registration order.
func (s *State) Links() []*Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Link(nil), s.linkOrder...)
}

func (s *State) SelectedNode() *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *State) HoverNode() *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hoverNode
}

func (s *State) HoverLink() *Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hoverLink
}

// GraphData returns the displayed subgraph. The pointer stays the same until
// the set of visible nodes or displayed links changes.
func (s *State) GraphData() *Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Location returns the bound location, or nil.
func (s *State) Location() Location { return s.location }
