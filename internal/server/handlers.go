package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/storage"
)

type createSessionRequest struct {
	Address  string `json:"address,omitempty"`
	Link     string `json:"link,omitempty"`
	Snapshot string `json:"snapshot,omitempty"`
}

type sessionResponse struct {
	ID           string `json:"id"`
	Location     string `json:"location"`
	Selected     string `json:"selected,omitempty"`
	Nodes        int    `json:"nodes"`
	Links        int    `json:"links"`
	VisibleNodes int    `json:"visible_nodes"`
	VisibleLinks int    `json:"visible_links"`
}

type nodeResponse struct {
	Address string `json:"address"`
	Visible bool   `json:"visible"`
	Status  string `json:"status"`
	Cursor  string `json:"cursor,omitempty"`
	Links   int    `json:"links"`
}

func describeSession(sess *session) sessionResponse {
	st := sess.state
	d := st.GraphData()
	resp := sessionResponse{
		ID:           sess.id,
		Location:     sess.location.Fragment(),
		Nodes:        st.NodeCount(),
		Links:        st.LinkCount(),
		VisibleNodes: len(d.Nodes),
		VisibleLinks: len(d.Links),
	}
	if sel := st.SelectedNode(); sel != nil {
		resp.Selected = sel.ID()
	}
	return resp
}

func describeNode(n *graph.Node) nodeResponse {
	return nodeResponse{
		Address: n.ID(),
		Visible: n.Visible(),
		Status:  n.FetchStatus().String(),
		Cursor:  n.Cursor(),
		Links:   n.LinkCount(),
	}
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.len()})
}

// handleCreateSession handles POST /api/sessions.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess := s.newSession()
	if err := s.seedSession(r.Context(), sess, req); err != nil {
		sess.state.Close()
		s.writeError(w, r, err)
		return
	}
	s.sessions.add(sess)
	s.logger.Info("session created", "id", sess.id, "selected", sess.location.Fragment())
	writeJSON(w, http.StatusCreated, describeSession(sess))
}

func (s *Server) seedSession(ctx context.Context, sess *session, req createSessionRequest) error {
	set := 0
	for _, v := range []string{req.Address, req.Link, req.Snapshot} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "exactly one of address, link or snapshot is required")
	}

	switch {
	case req.Snapshot != "":
		snap, err := s.store.Load(ctx, req.Snapshot)
		if err != nil {
			return err
		}
		return sess.state.Restore(snap)
	case req.Link != "":
		address, err := graph.ParseDeepLink(req.Link)
		if err != nil {
			return err
		}
		sess.location.SetFragment(address)
		_, _, err = sess.state.InitFromLocation(ctx)
		return err
	default:
		if err := apperrors.ValidateAccountAddress(req.Address); err != nil {
			return err
		}
		_, err := sess.state.Init(ctx, req.Address)
		return err
	}
}

// withSession resolves the {id} URL parameter.
func (s *Server) withSession(fn func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.get(chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		fn(w, r, sess)
	}
}

// nodeParam resolves the {address} URL parameter to a registered node.
func nodeParam(r *http.Request, sess *session) (*graph.Node, error) {
	address := chi.URLParam(r, "address")
	n, ok := sess.state.Node(address)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeNodeNotFound, "account %s is not in the graph", address)
	}
	return n, nil
}

// handleGetSession handles GET /api/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		writeJSON(w, http.StatusOK, describeSession(sess))
	})(w, r)
}

// handleDeleteSession handles DELETE /api/sessions/{id}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.remove(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess.state.Close()
	w.WriteHeader(http.StatusNoContent)
}

// handleGraph handles GET /api/sessions/{id}/graph.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		data, err := graph.MarshalData(sess.state.GraphData(), sess.state.SelectedNode())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})(w, r)
}

// handleGraphSVG handles GET /api/sessions/{id}/graph.svg.
func (s *Server) handleGraphSVG(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		opts := graph.DOTOptions{Detailed: true, ShortIDs: true}
		if sel := sess.state.SelectedNode(); sel != nil {
			opts.Selected = sel.ID()
		}
		svg, err := graph.RenderSVG(r.Context(), graph.ToDOT(sess.state.GraphData(), opts))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(svg)
	})(w, r)
}

// handleSelect handles POST /api/sessions/{id}/select/{address}.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		address := chi.URLParam(r, "address")
		if err := apperrors.ValidateAccountAddress(address); err != nil {
			s.writeError(w, r, err)
			return
		}
		n := sess.state.AddNode(address)
		if err := sess.state.SelectNode(r.Context(), n); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, describeSession(sess))
	})(w, r)
}

// handleVisibility handles POST /api/sessions/{id}/nodes/{address}/visibility.
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		var req struct {
			Visible *bool `json:"visible"`
		}
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.Visible == nil {
			s.writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidInput, "visible is required"))
			return
		}
		n, err := nodeParam(r, sess)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := sess.state.SetDisplayNodeState(n, *req.Visible); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, describeNode(n))
	})(w, r)
}

// handleFetchMore handles POST /api/sessions/{id}/nodes/{address}/more.
// Requests are throttled per session.
func (s *Server) handleFetchMore(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		n, err := nodeParam(r, sess)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !sess.limiter.Allow() {
			retry := int(s.cfg.FetchInterval.Seconds() + 0.999)
			s.writeError(w, r, &apperrors.RateLimitedError{RetryAfter: max(retry, 1)})
			return
		}
		if err := sess.state.PopulateNodeLinks(r.Context(), n); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, describeNode(n))
	})(w, r)
}

// handleHover handles POST /api/sessions/{id}/hover.
// Empty values clear the highlight.
func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		var req struct {
			Node string `json:"node"`
			Link string `json:"link"`
		}
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		var node *graph.Node
		if req.Node != "" {
			n, ok := sess.state.Node(req.Node)
			if !ok {
				s.writeError(w, r, apperrors.New(apperrors.ErrCodeNodeNotFound, "account %s is not in the graph", req.Node))
				return
			}
			node = n
		}
		var link *graph.Link
		if req.Link != "" {
			l, ok := sess.state.Link(req.Link)
			if !ok {
				s.writeError(w, r, apperrors.New(apperrors.ErrCodeNotFound, "link %s is not in the graph", req.Link))
				return
			}
			link = l
		}

		if err := sess.state.SetHover(node, link); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})(w, r)
}

// handleSaveSnapshot handles POST /api/sessions/{id}/snapshots.
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	s.withSession(func(w http.ResponseWriter, r *http.Request, sess *session) {
		snap := sess.state.Snapshot()
		snap.Network = s.cfg.Network
		id, err := s.store.Save(r.Context(), snap)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	})(w, r)
}

// handleListSnapshots handles GET /api/snapshots?limit=N.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid limit %q", v))
			return
		}
		limit = n
	}
	sums, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sums == nil {
		sums = []storage.Summary{}
	}
	writeJSON(w, http.StatusOK, sums)
}

// handleGetSnapshot handles GET /api/snapshots/{id}.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
