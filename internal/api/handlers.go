package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medschedule/booking-engine/internal/appointment"
	"github.com/medschedule/booking-engine/internal/dialogue"
)

// DialogueEngine is the slice of the engine the HTTP layer needs.
type DialogueEngine interface {
	HandleTurn(ctx context.Context, sessionKey string, practitionerID uuid.UUID, channel, message string) (string, error)
}

// PractitionerDirectory resolves the practitioner a conversation is bound to.
type PractitionerDirectory interface {
	GetPractitionerBySlug(ctx context.Context, slug string) (*appointment.Practitioner, error)
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*appointment.Practitioner, error)
}

func chatHandler(engine DialogueEngine, dir PractitionerDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if strings.TrimSpace(req.Message) == "" {
			writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty")
			return
		}

		p, err := resolvePractitioner(r.Context(), dir, req.Practitioner)
		if err != nil {
			handlePractitionerError(w, err)
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		channel := req.Channel
		if channel == "" {
			channel = "web"
		}

		reply, err := engine.HandleTurn(r.Context(), sessionID, p.ID, channel, req.Message)
		if err != nil {
			handleTurnError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ChatResponse{SessionID: sessionID, Reply: reply})
	}
}

// resolvePractitioner accepts either the practitioner's UUID or its slug.
func resolvePractitioner(ctx context.Context, dir PractitionerDirectory, ref string) (*appointment.Practitioner, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, appointment.ErrPractitionerNotFound
	}
	if id, err := uuid.Parse(ref); err == nil {
		return dir.GetPractitionerByID(ctx, id)
	}
	return dir.GetPractitionerBySlug(ctx, ref)
}

func handlePractitionerError(w http.ResponseWriter, err error) {
	if errors.Is(err, appointment.ErrPractitionerNotFound) {
		writeError(w, http.StatusNotFound, "practitioner_not_found", "no practitioner matches the given reference")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func handleTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dialogue.ErrNoPractitioner):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
