package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorbook/internal/answer"
	"tutorbook/internal/backend"
	"tutorbook/internal/diagram"
	"tutorbook/internal/history"
)

func TestMain(m *testing.M) {
	diagram.Init(diagram.Config{Timeout: 5 * time.Second}, diagram.CompilerFunc(func(ctx context.Context, src string) ([]byte, error) {
		return []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), nil
	}))
	os.Exit(m.Run())
}

type fakeBackend struct {
	resp    answer.Response
	err     error
	healthy bool
}

func (f *fakeBackend) Ask(ctx context.Context, q answer.Question) (answer.Response, error) {
	if f.err != nil {
		return answer.Response{}, f.err
	}
	r := f.resp
	r.Subject, r.Level, r.LearningStyle, r.Language = q.Subject, q.Level, q.LearningStyle, q.Language
	return r, nil
}

func (f *fakeBackend) Options(ctx context.Context) answer.Options { return answer.FallbackOptions() }

func (f *fakeBackend) Health(ctx context.Context) error {
	if f.healthy {
		return nil
	}
	return fmt.Errorf("%w: down", backend.ErrBackend)
}

func newTestServer(t *testing.T, b Answerer, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts.Backend = b
	opts.History = store
	s, err := New(opts)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = s.Close()
	})
	return s, srv
}

const questionJSON = `{"subject":"Math","level":"Beginner","learning_style":"Visual","language":"English","question":"What is a prime?"}`

type askResult struct {
	EntryID int64 `json:"entry_id"`
	View    struct {
		Tags []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"tags"`
		Elements []struct {
			Kind      string `json:"kind"`
			HTML      string `json:"html"`
			DiagramID string `json:"diagram_id"`
		} `json:"elements"`
		HTML   string `json:"html"`
		Answer string `json:"answer"`
	} `json:"view"`
}

func TestAsk_ComposesAndRecordsHistory(t *testing.T) {
	b := &fakeBackend{resp: answer.Response{Answer: "Hi\n\n```mermaid\ngraph TD; A-->B;\n```"}}
	_, srv := newTestServer(t, b, Options{})

	res, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(questionJSON))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got askResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.NotZero(t, got.EntryID)
	require.Len(t, got.View.Tags, 4)
	assert.Equal(t, "Math", got.View.Tags[0].Value)
	assert.Equal(t, "English", got.View.Tags[3].Value)
	require.Len(t, got.View.Elements, 2)
	assert.Equal(t, "<p>Hi</p>", got.View.Elements[0].HTML)
	assert.Contains(t, got.View.Elements[1].HTML, "diagram-pending")
	assert.Equal(t, b.resp.Answer, got.View.Answer)

	hres, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer hres.Body.Close()
	var entries []answer.HistoryEntry
	require.NoError(t, json.NewDecoder(hres.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "What is a prime?", entries[0].Question)
}

func TestAsk_BackendFailureIs502(t *testing.T) {
	_, srv := newTestServer(t, &fakeBackend{err: fmt.Errorf("%w: connection refused", backend.ErrBackend)}, Options{})

	res, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(questionJSON))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), "Failed to get answer")
	assert.NotContains(t, string(body), "connection refused")
}

func TestAsk_InvalidQuestionIs400(t *testing.T) {
	_, srv := newTestServer(t, &fakeBackend{}, Options{})

	for _, body := range []string{`{"subject":"Math"}`, `not json`} {
		res, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, body)
	}
}

func TestAsk_MethodNotAllowed(t *testing.T) {
	_, srv := newTestServer(t, &fakeBackend{}, Options{})
	res, err := http.Get(srv.URL + "/api/ask")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
}

func TestRender_RejectsResponseWithoutAnswer(t *testing.T) {
	s, srv := newTestServer(t, &fakeBackend{}, Options{})

	for _, body := range []string{`{}`, `{"subject":"Math","level":"Beginner"}`} {
		res, err := http.Post(srv.URL+"/api/render", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, body)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Nil(t, s.current, "nothing was composed")
}

func TestRender_DiagramResolves(t *testing.T) {
	s, srv := newTestServer(t, &fakeBackend{}, Options{})

	body := `{"answer":"` + "```mermaid\\ngraph TD; A-->B;\\n```" + `","subject":"Math","level":"Beginner","learning_style":"Visual","language":"English"}`
	res, err := http.Post(srv.URL+"/api/render", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var got askResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	require.Len(t, got.View.Elements, 1)
	id := got.View.Elements[0].DiagramID
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return s.composer.Diagrams().Result(id).Status == diagram.Ready
	}, 2*time.Second, 10*time.Millisecond)

	dres, err := http.Get(srv.URL + "/api/diagram/" + id)
	require.NoError(t, err)
	defer dres.Body.Close()
	var d diagram.Diagram
	require.NoError(t, json.NewDecoder(dres.Body).Decode(&d))
	assert.Equal(t, diagram.Ready, d.Status)
	assert.Contains(t, d.SVG, "<svg")
}

func TestReset_ReleasesDiagrams(t *testing.T) {
	s, srv := newTestServer(t, &fakeBackend{}, Options{})

	body := `{"answer":"` + "```mermaid\\ngraph TD; A-->B;\\n```" + `"}`
	res, err := http.Post(srv.URL+"/api/render", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	var got askResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	res.Body.Close()
	id := got.View.Elements[0].DiagramID

	res, err = http.Post(srv.URL+"/api/reset", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, diagram.Unavailable, s.composer.Diagrams().Result(id).Status)
}

func TestHistory_EntrySearchAndClear(t *testing.T) {
	_, srv := newTestServer(t, &fakeBackend{resp: answer.Response{Answer: "A prime has two divisors."}}, Options{})

	res, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(questionJSON))
	require.NoError(t, err)
	var asked askResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&asked))
	res.Body.Close()

	res, err = http.Get(fmt.Sprintf("%s/api/history/%d", srv.URL, asked.EntryID))
	require.NoError(t, err)
	var entry struct {
		Entry answer.HistoryEntry `json:"entry"`
		View  struct {
			Answer string `json:"answer"`
		} `json:"view"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&entry))
	res.Body.Close()
	assert.Equal(t, "A prime has two divisors.", entry.View.Answer)

	res, err = http.Get(srv.URL + "/api/history?q=divisors")
	require.NoError(t, err)
	var found history.SearchResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&found))
	res.Body.Close()
	require.Len(t, found.Results, 1)
	assert.Equal(t, asked.EntryID, found.Results[0].ID)

	res, err = http.Get(srv.URL + "/api/history/9999")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/history", nil)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestOptionsAndHealth(t *testing.T) {
	_, srv := newTestServer(t, &fakeBackend{healthy: false}, Options{})

	res, err := http.Get(srv.URL + "/api/options")
	require.NoError(t, err)
	var o answer.Options
	require.NoError(t, json.NewDecoder(res.Body).Decode(&o))
	res.Body.Close()
	assert.Equal(t, answer.FallbackOptions(), o)

	res, err = http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestIndexAndAssets(t *testing.T) {
	_, srv := newTestServer(t, &fakeBackend{}, Options{})

	for path, want := range map[string]string{
		"/":                         "<title>tutorbook</title>",
		"/app/app.js":               "WebSocket",
		"/app/chroma.css?theme=dark": ".chroma",
	} {
		res, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}

	res, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestPreview(t *testing.T) {
	p := filepath.Join(t.TempDir(), "answer.md")
	require.NoError(t, os.WriteFile(p, []byte("# Preview\n\nbody"), 0o644))

	_, srv := newTestServer(t, nil, Options{PreviewFile: p, PreviewMeta: answer.Response{Subject: "Notes"}})

	res, err := http.Get(srv.URL + "/api/preview")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got askResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Contains(t, got.View.HTML, "Preview")
	assert.Equal(t, "Notes", got.View.Tags[0].Value)
}

func TestPreview_DisabledIs404(t *testing.T) {
	_, srv := newTestServer(t, &fakeBackend{}, Options{})
	res, err := http.Get(srv.URL + "/api/preview")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

