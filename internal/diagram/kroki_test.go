package diagram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKroki_Compile(t *testing.T) {
	var gotBody, gotType, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotType, gotPath = string(b), r.Header.Get("Content-Type"), r.URL.Path
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`))
	}))
	defer srv.Close()

	k := NewKroki(srv.URL+"/", time.Second)
	defer func() { _ = k.Close() }()

	svg, err := k.Compile(context.Background(), "graph TD; A-->B;")
	require.NoError(t, err)
	assert.Equal(t, `<svg xmlns="http://www.w3.org/2000/svg"></svg>`, string(svg))
	assert.Equal(t, "/mermaid/svg", gotPath)
	assert.Equal(t, "graph TD; A-->B;", gotBody)
	assert.Contains(t, gotType, "text/plain")
}

func TestKroki_Compile_SyntaxErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "Syntax error in graph", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewKroki(srv.URL, time.Second).Compile(context.Background(), "graph TD; A--")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestKroki_Compile_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`<svg></svg>`))
	}))
	defer srv.Close()

	svg, err := NewKroki(srv.URL, time.Second).Compile(context.Background(), "graph TD; A-->B;")
	require.NoError(t, err)
	assert.Equal(t, "<svg></svg>", string(svg))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
