// Package viewer serves the analysis and history views as a small local JSON
// API for a browser front end.
package viewer

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/phase"
	"github.com/sells-group/shotsense-cli/internal/render"
	"github.com/sells-group/shotsense-cli/internal/view"
)

// SignInPath is where a client is sent when the session has expired.
const SignInPath = "/signin"

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Normalizer     *phase.Normalizer
}

// Server holds the view dependencies.
type Server struct {
	resolver   view.Resolver
	lister     view.Lister
	normalizer *phase.Normalizer
}

// NewRouter builds the viewer API.
//
//	GET /health
//	GET /api/history
//	GET /api/analyses/{id}
func NewRouter(resolver view.Resolver, lister view.Lister, opts Options) http.Handler {
	s := &Server{resolver: resolver, lister: lister, normalizer: opts.Normalizer}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(api chi.Router) {
		api.Get("/history", s.handleHistory)
		api.Get("/analyses/{id}", s.handleAnalysis)
	})
	return r
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	v := view.NewHistoryView(s.lister)
	defer v.Unmount()

	select {
	case <-v.Load(r.Context()):
	case <-r.Context().Done():
		return
	}
	if v.Redirected() {
		writeRedirect(w)
		return
	}

	st := v.State()
	writeJSON(w, statusCode(st.Status), st)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v := view.NewAnalysisView(s.resolver, s.normalizer)
	defer v.Unmount()

	select {
	case <-v.Navigate(r.Context(), id, nil):
	case <-r.Context().Done():
		return
	}
	if v.Redirected() {
		writeRedirect(w)
		return
	}

	st := v.State()
	writeJSON(w, statusCode(st.Status), render.NewAnalysisDoc(st))
}

func statusCode(s view.Status) int {
	switch s {
	case view.StatusReady:
		return http.StatusOK
	case view.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeRedirect(w http.ResponseWriter) {
	w.Header().Set("Location", SignInPath)
	writeJSON(w, http.StatusUnauthorized, map[string]string{"redirect": SignInPath})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("viewer: encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("viewer: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
