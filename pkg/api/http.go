package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/rNintendoSwitch/Parakarry/pkg/api/handlers"
	"github.com/rNintendoSwitch/Parakarry/pkg/appeal"
	"github.com/rNintendoSwitch/Parakarry/pkg/auth"
	"github.com/rNintendoSwitch/Parakarry/pkg/events"
	"github.com/rNintendoSwitch/Parakarry/pkg/mail"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
)

// Deps carries the wired services the router exposes.
type Deps struct {
	Engine     *mail.Engine
	Dispatcher *events.Dispatcher
	Appeals    *appeal.Service
	Feed       *Feed
	// MaxBodyBytes caps request bodies; 0 means 1MB.
	MaxBodyBytes int64
}

// Router builds the full HTTP surface: thread reads, the moderator command
// endpoints, appeal decisions, the bridge event intake, docs, metrics, and
// the live event feed.
func Router(d Deps) http.Handler {
	cmds := &handlers.Commands{Engine: d.Engine}
	appeals := &handlers.Appeals{Service: d.Appeals}
	evs := &handlers.Events{Dispatcher: d.Dispatcher}

	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs"))).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/events", evs.Push).Methods(http.MethodPost)
	if d.Feed != nil {
		v1.Handle("/events/live", auth.RequireAdmin(http.HandlerFunc(d.Feed.Handler))).Methods(http.MethodGet)
	}

	v1.HandleFunc("/threads", handlers.ListThreads).Methods(http.MethodGet)
	v1.HandleFunc("/threads", cmds.Open).Methods(http.MethodPost)
	v1.HandleFunc("/threads/{id}", handlers.GetThread).Methods(http.MethodGet)
	v1.HandleFunc("/threads/{id}/messages", handlers.ListThreadMessages).Methods(http.MethodGet)
	v1.HandleFunc("/threads/{id}/reply", cmds.Reply).Methods(http.MethodPost)
	v1.HandleFunc("/threads/{id}/internal", cmds.Internal).Methods(http.MethodPost)
	v1.HandleFunc("/threads/{id}/close", cmds.Close).Methods(http.MethodPost)
	v1.HandleFunc("/threads/{id}/schedule_close", cmds.ScheduleClose).Methods(http.MethodPost)
	v1.HandleFunc("/threads/{id}/cancel_close", cmds.CancelClose).Methods(http.MethodPost)

	v1.Handle("/appeals/{id}/accept", auth.RequireAdmin(http.HandlerFunc(appeals.Accept))).Methods(http.MethodPost)
	v1.Handle("/appeals/{id}/deny", auth.RequireAdmin(http.HandlerFunc(appeals.Deny))).Methods(http.MethodPost)

	v1.HandleFunc("/users/{id}/threads", handlers.ListUserThreads).Methods(http.MethodGet)
	v1.HandleFunc("/users/{id}/decisions", appeals.UserDecisions).Methods(http.MethodGet)

	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return limitBody(maxBody, r)
}

func limitBody(n int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		next.ServeHTTP(w, r)
	})
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
