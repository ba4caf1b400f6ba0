package llm_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/linkpress/pkg/llm"
)

func TestModelListerList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[`+
			`{"id":"llama3:latest","object":"model","created":1,"owned_by":"library"},`+
			`{"id":"gemma2:9b","object":"model","created":2,"owned_by":"library"}]}`)
	}))
	defer server.Close()

	lister := llm.NewModelLister(server.URL+"/", server.Client())

	ids, err := lister.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "gemma2:9b"}, ids)
	assert.Equal(t, ids, lister.ListWithFallback(context.Background()))
}

func TestModelListerFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	lister := llm.NewModelLister(server.URL, server.Client())

	_, err := lister.List(context.Background())
	assert.Error(t, err)
	assert.Equal(t, llm.FallbackModels, lister.ListWithFallback(context.Background()))
}
