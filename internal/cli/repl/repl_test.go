package repl

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"simoj/internal/cli/command"
	httpclient "simoj/internal/cli/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method   string
	path     string
	body     string
	operator string
}

type fakeServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	reply    string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:   r.Method,
		path:     r.URL.Path,
		body:     string(body),
		operator: r.Header.Get("X-Operator-Id"),
	})
	status, reply := f.status, f.reply
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(reply))
}

func (f *fakeServer) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newSession(t *testing.T, input string, status int, reply string) (*Session, *fakeServer, *bytes.Buffer) {
	t.Helper()
	srv := &fakeServer{status: status, reply: reply}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	out := &bytes.Buffer{}
	client := httpclient.New(ts.URL, time.Second, "ops")
	return New(client, command.Registry(), false, strings.NewReader(input), out), srv, out
}

func TestSessionRunsCommands(t *testing.T) {
	t.Parallel()

	input := "final recompute problem_id=7 owner_id=42\nfinal get problem=7 owner=42\nexit\nfinal delete id=1\n"
	session, srv, out := newSession(t, input, http.StatusOK, `{"code":10000,"message":"Success","data":{}}`)
	session.Run(context.Background())

	reqs := srv.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "/api/v1/finalize/recompute", reqs[0].path)
	assert.JSONEq(t, `{"problem_id":7,"owner_id":42}`, reqs[0].body)
	assert.Equal(t, "ops", reqs[0].operator)
	assert.Equal(t, http.MethodGet, reqs[1].method)
	assert.Equal(t, "/api/v1/finalize/problems/7/owners/42/final", reqs[1].path)
	assert.Contains(t, out.String(), "HTTP 200")
	assert.Contains(t, out.String(), "bye")
	assert.False(t, session.LastFailed())
}

func TestSessionPromptsMissingFields(t *testing.T) {
	t.Parallel()

	session, srv, out := newSession(t, "final candidate id=5\nfalse\n", http.StatusOK, `{"code":10000}`)
	session.Run(context.Background())

	reqs := srv.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/api/v1/finalize/submissions/5/candidate", reqs[0].path)
	assert.JSONEq(t, `{"candidate":false}`, reqs[0].body)
	assert.Contains(t, out.String(), "candidate (true/false):")
}

func TestSessionReportsFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		line   string
		status int
		reply  string
		sent   int
		output string
	}{
		{name: "unknown command", line: "final explode", status: http.StatusOK, output: "unknown command: final explode"},
		{name: "bad param", line: "final delete 5", status: http.StatusOK, output: "invalid param: 5"},
		{name: "invalid value", line: "final delete id=x", status: http.StatusOK, output: "invalid id"},
		{name: "too short", line: "final", status: http.StatusOK, output: "invalid command"},
		{name: "server error", line: "final delete id=9", status: http.StatusNotFound, reply: `{"code":40400,"message":"not found"}`, sent: 1, output: "HTTP 404"},
		{name: "error envelope on 200", line: "final delete id=9", status: http.StatusOK, reply: `{"code":50300}`, sent: 1, output: "HTTP 200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			session, srv, out := newSession(t, "", tt.status, tt.reply)
			require.NoError(t, session.Exec(context.Background(), tt.line))
			assert.True(t, session.LastFailed())
			assert.Len(t, srv.recorded(), tt.sent)
			assert.Contains(t, out.String(), tt.output)
		})
	}
}

func TestSessionSystemCommands(t *testing.T) {
	t.Parallel()

	session, srv, out := newSession(t, "", http.StatusOK, `{"code":10000}`)
	ctx := context.Background()

	require.NoError(t, session.Exec(ctx, "help"))
	assert.Contains(t, out.String(), "final recompute")
	assert.Contains(t, out.String(), "final reselect")

	require.NoError(t, session.Exec(ctx, "set timeout nope"))
	assert.Contains(t, out.String(), "invalid duration")

	require.NoError(t, session.Exec(ctx, "set operator"))
	require.NoError(t, session.Exec(ctx, "final reselect cp=3"))
	reqs := srv.recorded()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].operator)
	assert.Equal(t, "/api/v1/finalize/contest-problems/3/reselect", reqs[0].path)

	require.NoError(t, session.Exec(ctx, "show config"))
	assert.Contains(t, out.String(), "base: http://")

	assert.ErrorIs(t, session.Exec(ctx, "quit"), errExit)
}
