package shotsense

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/shotsense-cli/internal/resilience"
)

func fastRetry() Option {
	return WithRetryPolicy(resilience.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	})
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	all := append([]Option{WithBaseURL(srv.URL), fastRetry()}, opts...)
	return NewClient(all...), srv
}

func TestUpload_Success(t *testing.T) {
	t.Parallel()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		c, err := r.Cookie("session")
		require.NoError(t, err)
		assert.Equal(t, "abc", c.Value)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "LEFT", r.FormValue("shootingArm"))

		f, hdr, err := r.FormFile("video")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "clip.mp4", hdr.Filename)
		assert.Equal(t, "video/mp4", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "fake-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"analysis_id":"a1","originalVideoUrl":"/videos/x.mp4","metrics":{"S_knee":1.5}}`))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "abc"}})
	client := NewClient(WithBaseURL(srv.URL), WithCookieJar(jar), fastRetry())

	got, err := client.Upload(context.Background(), UploadRequest{
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		Body:        strings.NewReader("fake-bytes"),
		ShootingArm: "LEFT",
	})
	require.NoError(t, err)
	assert.True(t, got.Has("metrics"))
	assert.JSONEq(t, `"a1"`, string(got["analysis_id"]))
}

func TestUpload_DefaultsArmToRight(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "RIGHT", r.FormValue("shootingArm"))
		w.Write([]byte(`{"analysis_id":"a2"}`))
	})

	_, err := client.Upload(context.Background(), UploadRequest{Filename: "a.mov", Body: strings.NewReader("x")})
	require.NoError(t, err)
}

func TestUpload_ServerErrorMessageNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"No person detected in video"}`))
	})

	_, err := client.Upload(context.Background(), UploadRequest{Filename: "a.mp4", Body: strings.NewReader("x")})
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "No person detected in video", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpload_NilBody(t *testing.T) {
	t.Parallel()

	client := NewClient()
	_, err := client.Upload(context.Background(), UploadRequest{Filename: "a.mp4"})
	require.Error(t, err)
}

func TestGetAnalysis_Success(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/analyses/abc 123", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`{"id":"abc 123","make_probability":0.62}`))
	})

	got, err := client.GetAnalysis(context.Background(), "abc 123")
	require.NoError(t, err)
	assert.JSONEq(t, `0.62`, string(got["make_probability"]))
}

func TestGetAnalysis_NotFound(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Analysis not found"}`))
	})

	_, err := client.GetAnalysis(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsUnauthorized(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetAnalysis_Unauthorized(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Unauthorized"}`))
	})

	_, err := client.GetAnalysis(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestGetAnalysis_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":"a1"}`))
	})

	got, err := client.GetAnalysis(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, got.Has("id"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetAnalysis_InvalidJSON(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})

	_, err := client.GetAnalysis(context.Background(), "a1")
	require.Error(t, err)
	_, isAPI := AsAPIError(err)
	assert.False(t, isAPI)
}

func TestListAnalyses_Array(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-analyses", r.URL.Path)
		w.Write([]byte(`[{"id":2,"created_at":"2025-03-02T10:00:00"},{"id":1,"created_at":"2025-03-01T10:00:00"}]`))
	})

	got, err := client.ListAnalyses(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `2`, string(got[0]["id"]))
}

func TestListAnalyses_Envelope(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"analyses":[{"id":"x"}]}`))
	})

	got, err := client.ListAnalyses(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestListAnalyses_Empty(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	got, err := client.ListAnalyses(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		json.NewEncoder(w).Encode(User{Name: "Ada", Email: "ada@example.com"})
	})

	u, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@example.com", u.Email)
}

func TestSignIn_StoresCookie(t *testing.T) {
	t.Parallel()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signin", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, "pw", body["password"])

		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"User successfully signed in"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithCookieJar(jar))
	require.NoError(t, client.SignIn(context.Background(), "ada@example.com", "pw"))

	u, _ := url.Parse(srv.URL)
	cookies := jar.Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "s1", cookies[0].Value)
}

func TestSignIn_ErrorBodyWithSuccessStatus(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Please check your login details and try again"}`))
	})

	err := client.SignIn(context.Background(), "ada@example.com", "bad")
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "Please check your login details and try again", apiErr.Message)
}

func TestSignUp_Rejected(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada", body["name"])

		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Email already registered"}`))
	})

	err := client.SignUp(context.Background(), "Ada", "ada@example.com", "pw")
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Email already registered", apiErr.Message)
}

func TestBreaker_FailsFastAfterOutage(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	breaker := resilience.NewBreaker(resilience.BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithBreaker(breaker), WithRetryPolicy(resilience.NoRetry()))

	_, err := client.GetAnalysis(context.Background(), "a1")
	require.Error(t, err)

	_, err = client.GetAnalysis(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithRateLimit(t *testing.T) {
	t.Parallel()

	c := NewClient(WithRateLimit(5)).(*httpClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, rate.Limit(5), c.limiter.Limit())

	c = NewClient(WithRateLimit(5), WithRateLimit(0)).(*httpClient)
	assert.Nil(t, c.limiter)
}

func TestAPIError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "shotsense: status 500: boom", (&APIError{StatusCode: 500, Message: "boom"}).Error())
	assert.Equal(t, "shotsense: status 502: bad gateway", (&APIError{StatusCode: 502, Body: "bad gateway"}).Error())
}

func TestPayload_Has(t *testing.T) {
	t.Parallel()

	p := Payload{"a": json.RawMessage(`1`), "b": json.RawMessage(`null`)}
	assert.True(t, p.Has("a"))
	assert.False(t, p.Has("b"))
	assert.False(t, p.Has("c"))
}
