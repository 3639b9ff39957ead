package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"participation-tracker/internal/pkg/logger"
)

// NewRouter mounts the REST API and the websocket endpoint.
func NewRouter(h *Handler, ws *WSHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)

	mux.HandleFunc("GET /students", h.listStudents)
	mux.HandleFunc("POST /students", h.createStudent)
	mux.HandleFunc("DELETE /students/{id}", h.deleteStudent)
	mux.HandleFunc("POST /students/{id}/protection", h.toggleProtection)
	mux.HandleFunc("PUT /students/{id}/section", h.assignSection)

	mux.HandleFunc("GET /classes", h.listClasses)
	mux.HandleFunc("POST /classes", h.createClass)
	mux.HandleFunc("DELETE /classes/{id}", h.deleteClass)

	mux.HandleFunc("GET /sections", h.listSections)
	mux.HandleFunc("POST /sections", h.createSection)
	mux.HandleFunc("DELETE /sections/{id}", h.deleteSection)

	mux.HandleFunc("PUT /selection", h.updateSelection)
	mux.HandleFunc("GET /qualities", h.listQualities)
	mux.HandleFunc("GET /participation", h.listParticipation)
	mux.HandleFunc("POST /participation", h.recordParticipation)
	mux.HandleFunc("GET /leaderboard", h.leaderboard)

	mux.HandleFunc("GET /settings", h.getSettings)
	mux.HandleFunc("PUT /settings", h.updateSettings)
	mux.HandleFunc("GET /notifications/preferences", h.getPreferences)
	mux.HandleFunc("PUT /notifications/preferences", h.updatePreferences)

	mux.HandleFunc("GET /tracking", h.trackingStatus)
	mux.HandleFunc("POST /tracking/start", h.startTracking)
	mux.HandleFunc("POST /tracking/stop", h.stopTracking)

	if ws != nil {
		mux.HandleFunc("GET /ws", ws.ServeWS)
	}
	return logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
