package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"participation-tracker/internal/app"
	"participation-tracker/internal/domain"
	"participation-tracker/internal/recognition"
)

type stubSession struct {
	state    recognition.State
	startErr error
}

func (s *stubSession) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.state = recognition.Listening
	return nil
}

func (s *stubSession) Stop(context.Context) error {
	s.state = recognition.Idle
	return nil
}

func (s *stubSession) State() recognition.State { return s.state }
func (s *stubSession) Err() error               { return nil }

func newTestServer(t *testing.T, session SessionControl) (*httptest.Server, *app.Tracker) {
	t.Helper()
	tracker := app.NewTracker(app.DefaultOptions(), nil, nil, nil, nil)
	notifications := app.NewNotificationManager(app.DefaultPreferences())
	handler := NewHandler(tracker, session, notifications, app.DefaultOptions())
	server := httptest.NewServer(NewRouter(handler, NewWSHandler(tracker, nil)))
	t.Cleanup(server.Close)
	return server, tracker
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestParticipationFlow(t *testing.T) {
	session := &stubSession{}
	server, _ := newTestServer(t, session)

	var student domain.Student
	if code := doJSON(t, http.MethodPost, server.URL+"/students", map[string]any{"firstName": "John", "lastName": "Smith"}, &student); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if !student.Protected {
		t.Fatalf("new students start protected")
	}

	var errBody errorBody
	if code := doJSON(t, http.MethodPost, server.URL+"/tracking/start", nil, &errBody); code != http.StatusConflict {
		t.Fatalf("expected 409 without a class, got %d", code)
	}

	var class domain.Class
	doJSON(t, http.MethodPost, server.URL+"/classes", map[string]any{"name": "Biology"}, &class)
	if code := doJSON(t, http.MethodPut, server.URL+"/selection", map[string]any{"classId": class.ID}, nil); code != http.StatusOK {
		t.Fatalf("expected selection ok, got %d", code)
	}

	var status trackingStatus
	if code := doJSON(t, http.MethodPost, server.URL+"/tracking/start", nil, &status); code != http.StatusOK {
		t.Fatalf("expected start ok, got %d", code)
	}
	if !status.Tracking || status.State != "listening" || status.ClassID != class.ID {
		t.Fatalf("unexpected status %+v", status)
	}

	var rec domain.ParticipationRecord
	code := doJSON(t, http.MethodPost, server.URL+"/participation", map[string]any{
		"studentId": student.ID,
		"quality":   "good analysis",
	}, &rec)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if rec.Quality.Score != 4 || rec.Confidence != 0.8 || rec.ClassID != class.ID {
		t.Fatalf("unexpected record %+v", rec)
	}

	var lb domain.Leaderboard
	doJSON(t, http.MethodGet, server.URL+"/leaderboard", nil, &lb)
	if len(lb.Class) != 1 || lb.Class[0].TotalScore != 4 || lb.Class[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}

	doJSON(t, http.MethodPost, server.URL+"/tracking/stop", nil, &status)
	if status.Tracking || status.State != "idle" {
		t.Fatalf("unexpected status after stop %+v", status)
	}
}

func TestValidationAndErrorMapping(t *testing.T) {
	server, _ := newTestServer(t, nil)

	var body errorBody
	if code := doJSON(t, http.MethodPost, server.URL+"/students", map[string]any{"firstName": "John"}, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body.Errors["lastName"] != "required" {
		t.Fatalf("expected lastName required, got %+v", body.Errors)
	}

	if code := doJSON(t, http.MethodPut, server.URL+"/settings", map[string]any{"nameDetectionMode": "nickname"}, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad mode, got %d", code)
	}

	var student domain.Student
	doJSON(t, http.MethodPost, server.URL+"/students", map[string]any{"firstName": "Pat", "lastName": "Kim"}, &student)
	if code := doJSON(t, http.MethodDelete, server.URL+"/students/"+student.ID, nil, &body); code != http.StatusConflict {
		t.Fatalf("expected 409 for protected student, got %d", code)
	}
	if code := doJSON(t, http.MethodPost, server.URL+"/students/"+student.ID+"/protection", nil, &student); code != http.StatusOK || student.Protected {
		t.Fatalf("expected protection toggled off, got %d %+v", code, student)
	}
	if code := doJSON(t, http.MethodDelete, server.URL+"/students/"+student.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if code := doJSON(t, http.MethodDelete, server.URL+"/classes/missing", nil, &body); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code := doJSON(t, http.MethodPost, server.URL+"/participation", map[string]any{"studentId": "x", "quality": "Stellar"}, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown quality, got %d", code)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	server, _ := newTestServer(t, nil)

	var prefs preferencesBody
	doJSON(t, http.MethodGet, server.URL+"/notifications/preferences", nil, &prefs)
	if !prefs.RankingChanges || prefs.MinTimeBetweenAlertsSeconds != 30 {
		t.Fatalf("unexpected defaults %+v", prefs)
	}

	update := preferencesBody{ParticipationAlerts: true, MinTimeBetweenAlertsSeconds: 60}
	if code := doJSON(t, http.MethodPut, server.URL+"/notifications/preferences", update, &prefs); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	doJSON(t, http.MethodGet, server.URL+"/notifications/preferences", nil, &prefs)
	if prefs.RankingChanges || prefs.MinTimeBetweenAlertsSeconds != 60 {
		t.Fatalf("expected preferences stored, got %+v", prefs)
	}
}
