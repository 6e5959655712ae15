// Package web serves published events as ActivityStreams objects.
package web

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"eventfed/internal/activity"
	"eventfed/internal/config"
	appLog "eventfed/internal/log"
	"eventfed/internal/metrics"
	"eventfed/internal/model"
	"eventfed/internal/transform"
)

// ContentType is the ActivityPub media type for objects and collections.
const ContentType = "application/activity+json"

var errUnsupported = errors.New("web: item cannot be published")

// EventSource is the read side of the catalog.
type EventSource interface {
	List() []model.Event
	Get(id string) (model.Event, bool)
	LastRefresh() time.Time
}

// Server provides the HTTP endpoints:
//
//	GET /health        liveness, always public
//	GET /events        OrderedCollection of all events
//	GET /events/{id}   a single Event
//	GET /metrics       Prometheus exposition, optionally behind Basic Auth
type Server struct {
	cfg     *config.Config
	events  EventSource
	factory *transform.Factory
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewServer constructs a new Server. m may be nil, in which case /metrics
// answers 404.
func NewServer(cfg *config.Config, events EventSource, factory *transform.Factory, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		events:  events,
		factory: factory,
		metrics: m,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /events", s.handleCollection)
	s.mux.HandleFunc("GET /events/{id}", s.handleEvent)

	metricsHandler := s.metrics.Handler()
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled for /metrics")
		metricsHandler = s.basicAuthMiddleware(metricsHandler)
	}
	s.mux.Handle("GET /metrics", metricsHandler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleCollection(w http.ResponseWriter, _ *http.Request) {
	if t := s.events.LastRefresh(); !t.IsZero() {
		w.Header().Set("Last-Modified", t.UTC().Format(http.TimeFormat))
	}
	writeActivity(w, http.StatusOK, s.Collection())
}

// Collection builds the OrderedCollection of every event that transforms
// cleanly; failures are logged and left out.
func (s *Server) Collection() *activity.OrderedCollection {
	events := s.events.List()
	items := make([]*activity.Event, 0, len(events))
	for _, ev := range events {
		obj, err := s.transform(ev)
		if err != nil {
			appLog.Error("events: skipping event", err, "id", ev.ID, "source", ev.SourceID)
			continue
		}
		items = append(items, obj)
	}
	return activity.NewOrderedCollection(s.cfg.BaseURL+"/events", items)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ev, ok := s.events.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	obj, err := s.transform(ev)
	if err != nil {
		appLog.Error("event: transform failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to transform event")
		return
	}

	writeActivity(w, http.StatusOK, obj)
}

func (s *Server) transform(ev model.Event) (*activity.Event, error) {
	obj, err := s.factory.For(ev, unsupported{}).Transform()
	if err != nil {
		return nil, err
	}
	out, ok := obj.(*activity.Event)
	if !ok {
		return nil, errUnsupported
	}
	return out, nil
}

// unsupported is the fallback transformer for items that are not events.
type unsupported struct{}

func (unsupported) Transform() (transform.Object, error) { return nil, errUnsupported }

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.MetricsAuth == nil {
		return false
	}
	return s.cfg.MetricsAuth.Username != "" && s.cfg.MetricsAuth.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.MetricsAuth.Username
	password := s.cfg.MetricsAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventfed", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeActivity(w http.ResponseWriter, status int, v any) {
	writeBody(w, status, ContentType, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeBody(w, status, "application/json; charset=utf-8", v)
}

func writeBody(w http.ResponseWriter, status int, contentType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		appLog.Error("failed to encode response", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
