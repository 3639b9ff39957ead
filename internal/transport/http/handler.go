package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"participation-tracker/internal/app"
	"participation-tracker/internal/domain"
	"participation-tracker/internal/recognition"
)

// SessionControl is the part of the recognition session the API drives.
type SessionControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() recognition.State
	Err() error
}

// Handler serves the REST API.
type Handler struct {
	tracker       *app.Tracker
	session       SessionControl
	notifications *app.NotificationManager
	validate      *validator.Validate

	defaultDuration   time.Duration
	defaultConfidence float64
}

// NewHandler builds the REST handler. session and notifications may be nil.
func NewHandler(tracker *app.Tracker, session SessionControl, notifications *app.NotificationManager, opts app.Options) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		tracker:           tracker,
		session:           session,
		notifications:     notifications,
		validate:          v,
		defaultDuration:   opts.DefaultDuration,
		defaultConfidence: opts.DefaultConfidence,
	}
}

type studentRequest struct {
	FirstName string  `json:"firstName" validate:"required,max=100"`
	LastName  string  `json:"lastName" validate:"required,max=100"`
	SectionID *string `json:"sectionId"`
}

type sectionAssignment struct {
	SectionID *string `json:"sectionId"`
}

type groupRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type selectionRequest struct {
	ClassID   string `json:"classId"`
	SectionID string `json:"sectionId"`
}

type participationRequest struct {
	StudentID       string   `json:"studentId" validate:"required"`
	Quality         string   `json:"quality" validate:"required"`
	DurationSeconds int      `json:"durationSeconds" validate:"gte=0"`
	Keywords        []string `json:"keywords"`
	Confidence      *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

type settingsRequest struct {
	NameDetectionMode string `json:"nameDetectionMode" validate:"required,oneof=firstName lastName both"`
}

type preferencesBody struct {
	ParticipationAlerts         bool `json:"participationAlerts"`
	LowParticipationAlerts      bool `json:"lowParticipationAlerts"`
	RankingChanges              bool `json:"rankingChanges"`
	AudioDeviceAlerts           bool `json:"audioDeviceAlerts"`
	MinTimeBetweenAlertsSeconds int  `json:"minTimeBetweenAlertsSeconds" validate:"gte=0"`
}

type trackingStatus struct {
	Tracking bool   `json:"tracking"`
	ClassID  string `json:"classId,omitempty"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (h *Handler) listStudents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Students())
}

func (h *Handler) createStudent(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.tracker.AddStudent(r.Context(), strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName), req.SectionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) deleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.RemoveStudent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleProtection(w http.ResponseWriter, r *http.Request) {
	s, err := h.tracker.ToggleProtection(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) assignSection(w http.ResponseWriter, r *http.Request) {
	var req sectionAssignment
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.tracker.UpdateStudentSection(r.Context(), r.PathValue("id"), req.SectionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) listClasses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Classes())
}

func (h *Handler) createClass(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.tracker.AddClass(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) deleteClass(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.RemoveClass(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Sections())
}

func (h *Handler) createSection(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.tracker.AddSection(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Description))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) deleteSection(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.RemoveSection(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := h.tracker.SelectClass(ctx, req.ClassID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.tracker.SelectSection(ctx, req.SectionID); err != nil {
		writeError(w, err)
		return
	}
	h.tracker.UpdateRankings(ctx)
	classID, sectionID := h.tracker.Selection()
	writeJSON(w, http.StatusOK, selectionRequest{ClassID: classID, SectionID: sectionID})
}

func (h *Handler) listQualities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domain.Qualities())
}

func (h *Handler) listParticipation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records := h.tracker.Participations(q.Get("classId"), q.Get("studentId"))
	if records == nil {
		records = []domain.ParticipationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) recordParticipation(w http.ResponseWriter, r *http.Request) {
	var req participationRequest
	if !h.decode(w, r, &req) {
		return
	}
	quality, err := domain.QualityByKeyword(req.Quality)
	if err != nil {
		writeError(w, err)
		return
	}
	duration := h.defaultDuration
	if req.DurationSeconds > 0 {
		duration = time.Duration(req.DurationSeconds) * time.Second
	}
	confidence := h.defaultConfidence
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	rec, err := h.tracker.RecordParticipation(r.Context(), req.StudentID, duration, quality, req.Keywords, confidence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) leaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Leaderboard())
}

func (h *Handler) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Settings())
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	settings, err := h.tracker.UpdateSettings(r.Context(), domain.Settings{NameDetectionMode: domain.NameMode(req.NameDetectionMode)})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) getPreferences(w http.ResponseWriter, _ *http.Request) {
	if h.notifications == nil {
		writeJSON(w, http.StatusOK, preferencesView(app.DefaultPreferences()))
		return
	}
	writeJSON(w, http.StatusOK, preferencesView(h.notifications.Preferences()))
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesBody
	if !h.decode(w, r, &req) {
		return
	}
	prefs := app.Preferences{
		ParticipationAlerts:    req.ParticipationAlerts,
		LowParticipationAlerts: req.LowParticipationAlerts,
		RankingChanges:         req.RankingChanges,
		AudioDeviceAlerts:      req.AudioDeviceAlerts,
		MinTimeBetweenAlerts:   time.Duration(req.MinTimeBetweenAlertsSeconds) * time.Second,
	}
	if h.notifications != nil {
		h.notifications.SetPreferences(prefs)
	}
	writeJSON(w, http.StatusOK, preferencesView(prefs))
}

func preferencesView(p app.Preferences) preferencesBody {
	return preferencesBody{
		ParticipationAlerts:         p.ParticipationAlerts,
		LowParticipationAlerts:      p.LowParticipationAlerts,
		RankingChanges:              p.RankingChanges,
		AudioDeviceAlerts:           p.AudioDeviceAlerts,
		MinTimeBetweenAlertsSeconds: int(p.MinTimeBetweenAlerts / time.Second),
	}
}

func (h *Handler) trackingStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) status() trackingStatus {
	classID, _ := h.tracker.ActiveClass()
	st := trackingStatus{Tracking: h.tracker.Tracking(), ClassID: classID}
	if h.session != nil {
		st.State = h.session.State().String()
		if err := h.session.Err(); err != nil {
			st.Error = err.Error()
		}
	}
	return st
}

// startTracking turns on participation detection and the recognition session.
func (h *Handler) startTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.tracker.StartTracking(ctx); err != nil {
		writeError(w, err)
		return
	}
	if h.session != nil {
		if err := h.session.Start(ctx); err != nil {
			h.tracker.StopTracking(ctx)
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) stopTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.session != nil {
		if err := h.session.Stop(ctx); err != nil {
			writeError(w, err)
			return
		}
	}
	h.tracker.StopTracking(ctx)
	writeJSON(w, http.StatusOK, h.status())
}
