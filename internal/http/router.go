package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"zoom-transcript-service/internal/app"
	"zoom-transcript-service/internal/models"
	"zoom-transcript-service/internal/service/speech"
)

// SessionView is the JSON form of the speech session.
type SessionView struct {
	SessionID   string `json:"sessionId"`
	State       string `json:"state"`
	Participant string `json:"participant"`
	Interim     string `json:"interim,omitempty"`
	Restarts    int    `json:"restarts"`
	Active      bool   `json:"active"`
}

type participantRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type startRequest struct {
	Participant string `json:"participant"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter constructs the HTTP router for the service and subscribes the
// live feed to the application's events.
func NewRouter(application *app.Application) http.Handler {
	hub := NewHub()
	subscribeFeed(application, hub)
	go func() {
		<-application.Done()
		hub.Close()
	}()

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/transcripts", listTranscripts(application))

		r.Get("/participants", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, application.Registry.List())
		})
		r.Post("/participants", joinParticipant(application))
		r.Get("/participants/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			writeJSON(w, http.StatusOK, models.Participant{ID: id, DisplayName: application.Registry.DisplayName(id)})
		})
		r.Delete("/participants/{id}", func(w http.ResponseWriter, r *http.Request) {
			application.Leave(chi.URLParam(r, "id"))
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/session", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, sessionView(application.Session))
		})
		r.Post("/session/start", startSession(application))
		r.Post("/session/stop", func(w http.ResponseWriter, _ *http.Request) {
			application.Session.Stop()
			writeJSON(w, http.StatusAccepted, sessionView(application.Session))
		})

		r.Get("/stream", hub.ServeHTTP)
	})

	return r
}

func listTranscripts(application *app.Application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := r.URL.Query().Get("since")
		if since == "" {
			writeJSON(w, http.StatusOK, application.Ledger.All())
			return
		}
		id, err := strconv.ParseInt(since, 10, 64)
		if err != nil || id < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be a non-negative transcript id"})
			return
		}
		writeJSON(w, http.StatusOK, application.Ledger.Since(id))
	}
}

func joinParticipant(application *app.Application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req participantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		if req.ID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "id is required"})
			return
		}
		application.Join(req.ID, req.DisplayName)
		writeJSON(w, http.StatusCreated, models.Participant{ID: req.ID, DisplayName: req.DisplayName})
	}
}

func startSession(application *app.Application) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := startRequest{Participant: application.Cfg.Service.Participant}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
				return
			}
		}
		if req.Participant == "" {
			req.Participant = application.Cfg.Service.Participant
		}

		err := application.Session.Start(req.Participant)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, sessionView(application.Session))
		case errors.Is(err, speech.ErrSessionActive):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		case errors.Is(err, speech.ErrEngineUnavailable), errors.Is(err, speech.ErrSessionClosed):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		}
	}
}

func sessionView(s *speech.Session) SessionView {
	return SessionView{
		SessionID:   s.ID(),
		State:       s.State().String(),
		Participant: s.Participant(),
		Interim:     s.CurrentInterim(),
		Restarts:    s.Restarts(),
		Active:      s.State().IsActive(),
	}
}

// subscribeFeed forwards session and audio events to the websocket hub.
func subscribeFeed(application *app.Application, hub *Hub) {
	s := application.Session
	s.OnInterim(func(text string) {
		hub.Broadcast(models.TranscriptInterim{
			EventType:   models.EventTranscriptInterim,
			SessionID:   s.ID(),
			Participant: s.Participant(),
			Text:        text,
			Timestamp:   time.Now().UnixMilli(),
		})
	})
	s.OnFinal(func(t models.Transcript, c models.Classification) {
		hub.Broadcast(models.TranscriptFinal{
			EventType:      models.EventTranscriptFinal,
			SessionID:      s.ID(),
			Transcript:     t,
			Classification: c,
			Timestamp:      time.Now().UnixMilli(),
		})
	})
	s.OnError(func(err *speech.RecognitionError) {
		hub.Broadcast(models.RecognitionFailure{
			EventType: models.EventRecognitionError,
			SessionID: s.ID(),
			Kind:      string(err.Kind),
			Message:   err.Message,
			Timestamp: time.Now().UnixMilli(),
		})
	})
	if application.Monitor != nil {
		application.Monitor.OnLevel(func(amplitude float64) {
			hub.Broadcast(models.AudioLevel{
				EventType: models.EventAudioLevel,
				Amplitude: amplitude,
				Timestamp: time.Now().UnixMilli(),
			})
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
