package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/httputil"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

const (
	rootAddr  = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"
	otherAddr = "GAAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQDZ7H"

	missingSnapshot = "00000000-0000-4000-8000-000000000000"
)

// pagedFetcher serves five payment records for rootAddr to GPEER1..GPEER5
// and nothing for any other account.
func pagedFetcher() graph.Fetcher {
	var all []relations.Record
	for i := 1; i <= 5; i++ {
		all = append(all, relations.Record{
			ID:          fmt.Sprintf("r%d", i),
			PagingToken: fmt.Sprintf("t%d", i),
			Type:        uint32(graph.KindPayments),
			Transfers:   []int64{1, 0},
			Created:     1700000000,
			Accounts:    []string{rootAddr, fmt.Sprintf("GPEER%d", i)},
		})
	}
	return graph.FetcherFunc(func(_ context.Context, address string, limit int, cursor string) (*relations.Page, error) {
		if address != rootAddr {
			return &relations.Page{Records: []relations.Record{}}, nil
		}
		start := 0
		for i, r := range all {
			if r.PagingToken == cursor {
				start = i + 1
			}
		}
		end := min(start+limit, len(all))
		return &relations.Page{Records: append([]relations.Record{}, all[start:end]...)}, nil
	})
}

func newTestServer(t *testing.T, fetcher graph.Fetcher) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(fetcher, nil, log.New(io.Discard), Config{
		Network:       "public",
		PageSize:      2,
		FetchInterval: time.Hour,
		FetchBurst:    1,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			// Array bodies are checked by the caller.
			out["raw"] = string(raw)
		}
	}
	return resp, out
}

// createSession opens a session on rootAddr and waits for the first page.
func createSession(t *testing.T, srv *Server, ts *httptest.Server) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"address": rootAddr})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d, body %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	sess, err := srv.sessions.get(id)
	if err != nil {
		t.Fatalf("session %q not registered: %v", id, err)
	}
	sess.state.Wait()
	return id
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, pagedFetcher())
	resp, body := do(t, http.MethodGet, ts.URL+"/api/health", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
}

func TestCreateSession(t *testing.T) {
	srv, ts := newTestServer(t, pagedFetcher())
	id := createSession(t, srv, ts)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["selected"] != rootAddr || body["location"] != rootAddr {
		t.Errorf("selected/location = %v/%v, want %s", body["selected"], body["location"], rootAddr)
	}
	if body["nodes"] != 3.0 || body["links"] != 2.0 {
		t.Errorf("nodes/links = %v/%v, want 3/2", body["nodes"], body["links"])
	}
	if body["visible_nodes"] != 1.0 || body["visible_links"] != 0.0 {
		t.Errorf("visible = %v/%v, want 1/0", body["visible_nodes"], body["visible_links"])
	}
}

func TestCreateSessionFromLink(t *testing.T) {
	srv, ts := newTestServer(t, pagedFetcher())
	link := "https://stellar.expert/explorer/public/account-relations#" + rootAddr
	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"link": link})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if body["selected"] != rootAddr {
		t.Errorf("selected = %v", body["selected"])
	}
	if sess, err := srv.sessions.get(body["id"].(string)); err == nil {
		sess.state.Wait()
	}
}

func TestCreateSessionErrors(t *testing.T) {
	_, ts := newTestServer(t, pagedFetcher())

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"empty", map[string]string{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"two sources", map[string]string{"address": rootAddr, "link": "#" + rootAddr}, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad address", map[string]string{"address": "GNOPE"}, http.StatusBadRequest, "INVALID_ADDRESS"},
		{"bad link", map[string]string{"link": "https://example.com/#nope"}, http.StatusBadRequest, "INVALID_ADDRESS"},
		{"unknown field", map[string]string{"account": rootAddr}, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing snapshot", map[string]string{"snapshot": missingSnapshot}, http.StatusNotFound, "SNAPSHOT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions", tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
}

func TestUnknownSession(t *testing.T) {
	_, ts := newTestServer(t, pagedFetcher())
	resp, body := do(t, http.MethodGet, ts.URL+"/api/sessions/missing/graph", nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "SESSION_NOT_FOUND" {
		t.Fatalf("got %d %v", resp.StatusCode, body)
	}
}

func TestGraphAndVisibility(t *testing.T) {
	srv, ts := newTestServer(t, pagedFetcher())
	id := createSession(t, srv, ts)
	base := ts.URL + "/api/sessions/" + id

	resp, body := do(t, http.MethodPost, base+"/nodes/GPEER1/visibility", map[string]bool{"visible": true})
	if resp.StatusCode != http.StatusOK || body["visible"] != true {
		t.Fatalf("visibility = %d %v", resp.StatusCode, body)
	}

	resp, err := http.Get(base + "/graph")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var data struct {
		Nodes []struct {
			ID       string `json:"id"`
			Selected bool   `json:"selected"`
		} `json:"nodes"`
		Links []struct {
			ID string `json:"id"`
		} `json:"links"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatal(err)
	}
	if len(data.Nodes) != 2 || len(data.Links) != 1 {
		t.Fatalf("graph = %d nodes, %d links; want 2, 1", len(data.Nodes), len(data.Links))
	}
	if data.Nodes[0].ID != rootAddr || !data.Nodes[0].Selected {
		t.Errorf("first node = %+v, want selected root", data.Nodes[0])
	}
	if data.Links[0].ID != "r1" {
		t.Errorf("link = %s, want r1", data.Links[0].ID)
	}

	resp, body = do(t, http.MethodPost, base+"/nodes/GMISSING/visibility", map[string]bool{"visible": true})
	if resp.StatusCode != http.StatusNotFound || body["code"] != "NODE_NOT_FOUND" {
		t.Errorf("missing node = %d %v", resp.StatusCode, body)
	}
	resp, body = do(t, http.MethodPost, base+"/nodes/GPEER1/visibility", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing flag = %d %v", resp.StatusCode, body)
	}
}

func TestFetchMoreRateLimited(t *testing.T) {
	srv, ts := newTestServer(t, pagedFetcher())
	id := createSession(t, srv, ts)
	more := ts.URL + "/api/sessions/" + id + "/nodes/" + rootAddr + "/more"

	resp, body := do(t, http.MethodPost, more, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first fetch = %d %v", resp.StatusCode, body)
	}
	if body["links"] != 4.0 || body["cursor"] != "t4" || body["status"] != graph.StatusHasMore.String() {
		t.Errorf("after fetch = %v", body)
	}

	resp, body = do(t, http.MethodPost, more, nil)
	if resp.StatusCode != http.StatusTooManyRequests || body["code"] != "RATE_LIMITED" {
		t.Fatalf("second fetch = %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") != "3600" {
		t.Errorf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}
}

func TestSelectAndHover(t *testing.T) {
	srv, ts := newTestServer(t, pagedFetcher())
	id := createSession(t, srv, ts)
	base := ts.URL + "/api/sessions/" + id

	resp, body := do(t, http.MethodPost, base+"/hover", map[string]string{"node": "GPEER2", "link": "r2"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("hover = %d %v", resp.StatusCode, body)
	}
	sess, _ := srv.sessions.get(id)
	if n := sess.state.HoverNode(); n == nil || n.ID() != "GPEER2" {
		t.Errorf("hover node = %v", n)
	}
	if l := sess.state.HoverLink(); l == nil || l.ID() != "r2" {
		t.Errorf("hover link = %v", l)
	}

	resp, _ = do(t, http.MethodPost, base+"/hover", map[string]string{})
	if resp.StatusCode != http.StatusNoContent || sess.state.HoverNode() != nil || sess.state.HoverLink() != nil {
		t.Errorf("clearing hover failed: %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, base+"/select/"+otherAddr, nil)
	if resp.StatusCode != http.StatusOK || body["selected"] != otherAddr {
		t.Fatalf("select = %d %v", resp.StatusCode, body)
	}
	sess.state.Wait()
	if sess.location.Fragment() != otherAddr {
		t.Errorf("location = %q", sess.location.Fragment())
	}

	resp, body = do(t, http.MethodPost, base+"/select/GNOPE", nil)
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "INVALID_ADDRESS" {
		t.Errorf("bad select = %d %v", resp.StatusCode, body)
	}
}

func TestSnapshotsRoundTrip(t *testing.T) {
	srv, ts := newTestServer(t, pagedFetcher())
	id := createSession(t, srv, ts)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/snapshots", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save = %d %v", resp.StatusCode, body)
	}
	snapID, _ := body["id"].(string)

	resp, err := http.Get(ts.URL + "/api/snapshots")
	if err != nil {
		t.Fatal(err)
	}
	var list []struct {
		ID       string `json:"id"`
		Network  string `json:"network"`
		Selected string `json:"selected"`
		Nodes    int    `json:"nodes"`
	}
	err = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != snapID || list[0].Network != "public" || list[0].Selected != rootAddr || list[0].Nodes != 3 {
		t.Fatalf("list = %+v", list)
	}

	resp, body = do(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"snapshot": snapID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("restore = %d %v", resp.StatusCode, body)
	}
	if body["selected"] != rootAddr || body["nodes"] != 3.0 || body["links"] != 2.0 {
		t.Errorf("restored session = %v", body)
	}

	resp, body = do(t, http.MethodGet, ts.URL+"/api/snapshots/"+missingSnapshot, nil)
	if resp.StatusCode != http.StatusNotFound || body["code"] != "SNAPSHOT_NOT_FOUND" {
		t.Errorf("missing snapshot = %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, http.MethodGet, ts.URL+"/api/snapshots?limit=-1", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit = %d", resp.StatusCode)
	}
}

func TestDeleteSession(t *testing.T) {
	srv, ts := newTestServer(t, pagedFetcher())
	id := createSession(t, srv, ts)

	resp, _ := do(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete = %d", resp.StatusCode)
	}
	if srv.sessions.len() != 0 {
		t.Errorf("sessions = %d", srv.sessions.len())
	}
}

func TestExpireIdleSessions(t *testing.T) {
	tests := []struct {
		name     string
		idle     time.Duration
		watchers int32
		expired  bool
	}{
		{"idle", 2 * time.Hour, 0, true},
		{"recently used", time.Minute, 0, false},
		{"idle with event stream", 2 * time.Hour, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(pagedFetcher(), nil, log.New(io.Discard), Config{PageSize: 2, SessionTTL: time.Hour})
			t.Cleanup(srv.Close)
			sess := srv.newSession()
			srv.sessions.add(sess)

			now := time.Now()
			sess.lastSeen.Store(now.Add(-tt.idle).UnixNano())
			sess.watchers.Store(tt.watchers)

			n := srv.expireIdle(now)
			if got := n == 1; got != tt.expired {
				t.Fatalf("expired = %d, want expired %v", n, tt.expired)
			}
			_, err := srv.sessions.get(sess.id)
			if tt.expired != (err != nil) {
				t.Errorf("lookup after sweep: %v", err)
			}
			if closed := errors.Is(sess.state.SetHover(nil, nil), graph.ErrClosed); closed != tt.expired {
				t.Errorf("state closed = %v, want %v", closed, tt.expired)
			}
		})
	}
}

func TestSessionLookupKeepsAlive(t *testing.T) {
	srv := New(pagedFetcher(), nil, log.New(io.Discard), Config{PageSize: 2, SessionTTL: time.Hour})
	t.Cleanup(srv.Close)
	sess := srv.newSession()
	srv.sessions.add(sess)
	sess.lastSeen.Store(time.Now().Add(-2 * time.Hour).UnixNano())

	if _, err := srv.sessions.get(sess.id); err != nil {
		t.Fatal(err)
	}
	if n := srv.expireIdle(time.Now()); n != 0 {
		t.Errorf("a session used just now expired")
	}
}

func TestExpireSessionsDisabled(t *testing.T) {
	srv := New(pagedFetcher(), nil, log.New(io.Discard), Config{})
	done := make(chan struct{})
	go func() {
		srv.ExpireSessions(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ExpireSessions should return at once without a TTL")
	}
}

func TestUpstreamFailure(t *testing.T) {
	fetcher := graph.FetcherFunc(func(context.Context, string, int, string) (*relations.Page, error) {
		return nil, relations.ErrNetwork
	})
	srv, ts := newTestServer(t, fetcher)
	id := createSession(t, srv, ts)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/nodes/"+rootAddr+"/more", nil)
	if resp.StatusCode != http.StatusBadGateway || body["code"] != "NETWORK_ERROR" {
		t.Fatalf("fetch more = %d %v", resp.StatusCode, body)
	}
}

func TestWriteErrorLogging(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		wantLog string
	}{
		{"transient upstream", httputil.Retryable(relations.ErrNetwork), http.StatusBadGateway, "upstream unavailable"},
		{"permanent upstream", relations.ErrNetwork, http.StatusBadGateway, "request failed"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "request failed"},
		{"client error", relations.ErrNotFound, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			srv := New(nil, nil, log.New(&buf), Config{})
			rec := httptest.NewRecorder()
			srv.writeError(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil), tt.err)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			switch {
			case tt.wantLog == "" && buf.Len() != 0:
				t.Errorf("unexpected log: %s", buf.String())
			case tt.wantLog != "" && !strings.Contains(buf.String(), tt.wantLog):
				t.Errorf("log = %q, want %q", buf.String(), tt.wantLog)
			}
		})
	}
}

func TestGraphSVG(t *testing.T) {
	if testing.Short() {
		t.Skip("graphviz rendering is slow")
	}
	srv, ts := newTestServer(t, pagedFetcher())
	id := createSession(t, srv, ts)

	resp, err := http.Get(ts.URL + "/api/sessions/" + id + "/graph.svg")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	svg, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("svg = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.Contains(svg, []byte("<svg")) {
		t.Errorf("body is not svg: %.80s", svg)
	}
}

func TestEventsWebsocket(t *testing.T) {
	srv, ts := newTestServer(t, pagedFetcher())
	id := createSession(t, srv, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/nodes/GPEER3/visibility", map[string]bool{"visible": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("visibility = %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev graph.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Kind != graph.EventVisibility || ev.Address != "GPEER3" {
		t.Errorf("event = %+v", ev)
	}
}
