package workfn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runplane/internal/runstore"
)

func TestHTTPWorkFunc_MapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "job-1", req["job_id"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"unresolved": []string{"step 4 unmatched"},
			"artifacts":  map[string]string{"stdout": "connection reset"},
		})
	}))
	defer srv.Close()

	work := NewHTTP(srv.URL, time.Second)
	res, err := work(context.Background(), &runstore.Job{ID: "job-1", Input: json.RawMessage(`{"goal":"x"}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"step 4 unmatched"}, res.Unresolved)
	assert.Equal(t, "connection reset", res.Artifacts["stdout"])
}

func TestHTTPWorkFunc_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	work := NewHTTP(srv.URL, time.Second)
	_, err := work(context.Background(), &runstore.Job{ID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestEcho(t *testing.T) {
	res, err := Echo(context.Background(), &runstore.Job{
		ID:    "job-1",
		Input: json.RawMessage(`{"unresolved":["a"],"artifacts":{"log":"timeout"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.Unresolved)
	assert.Equal(t, "timeout", res.Artifacts["log"])

	res, err = Echo(context.Background(), &runstore.Job{ID: "job-2"})
	require.NoError(t, err)
	assert.Empty(t, res.Unresolved)
}
