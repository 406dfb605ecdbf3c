package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCommand(t *testing.T) {
	var (
		mu       sync.Mutex
		gotQuery string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotQuery = r.URL.RawQuery
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"metadata":{"resultset":{"count":1}},"result":[{"id":"a0W5h00000UaQYxEAN","title":"IT導入補助金","acceptance_end_datetime":"2025-03-31T17:00:00Z","target_area_search":"全国"}]}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("JGRANTS_BASE_URL", srv.URL)
	t.Setenv("JGRANTS_RATE_LIMIT", "0")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"search", "IT導入", "--area", "東京都"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "IT導入補助金")
	assert.Contains(t, out.String(), "1件の補助金が見つかりました")
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, gotQuery, "acceptance=1")
	assert.Contains(t, gotQuery, "sort=acceptance_start_datetime")
}
