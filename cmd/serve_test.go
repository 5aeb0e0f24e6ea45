//go:build !integration

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shotsense-cli/internal/config"
	"github.com/sells-group/shotsense-cli/internal/viewer"
)

func TestServe_ConcurrentExpiredRequests(t *testing.T) {
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
	}))
	defer svc.Close()

	setupCLI(t, &fakeService{Server: svc})
	c, err := config.Load()
	require.NoError(t, err)
	cfg = c

	ctx := context.Background()
	st, err := openStore(ctx)
	require.NoError(t, err)
	require.NoError(t, st.SaveCookies(ctx, cfg.Service.BaseURL, []*http.Cookie{{Name: "session", Value: "stale"}}))
	require.NoError(t, st.Close())

	var errOut bytes.Buffer
	env, err := initEnv(ctx, &errOut)
	require.NoError(t, err)
	defer env.Close(ctx)

	router := viewer.NewRouter(env.Resolver, env.History, viewer.Options{})

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := "/api/analyses/abc"
			if i%2 == 1 {
				path = "/api/history"
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusUnauthorized, code, "request %d", i)
	}
	assert.True(t, env.expired.Load())
	assert.Equal(t, 1, strings.Count(errOut.String(), "Your session has expired"))

	saved, err := env.Store.LoadCookies(ctx, cfg.Service.BaseURL)
	require.NoError(t, err)
	assert.Empty(t, saved)
}
