package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// The menu gateway serves numeric-reply channels: short digit replies are
// expanded into the phrases the dialogue engine understands, and every
// response carries the menu so the user always knows the shortcuts.

const menuFooter = "\n\n1. Book an appointment\n2. Cancel an appointment\n3. Reschedule an appointment\n0. Start over"

var menuShortcuts = map[string]string{
	"1": "book an appointment",
	"2": "cancel my appointment",
	"3": "reschedule my appointment",
	"0": "start over",
}

func expandMenuChoice(text string) string {
	if phrase, ok := menuShortcuts[strings.TrimSpace(text)]; ok {
		return phrase
	}
	return text
}

func menuHandler(engine DialogueEngine, dir PractitionerDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MenuRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "empty_message", "text must not be empty")
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

		reply, err := engine.HandleTurn(r.Context(), sessionID, p.ID, "menu", expandMenuChoice(req.Text))
		if err != nil {
			handleTurnError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, MenuResponse{SessionID: sessionID, Reply: reply + menuFooter})
	}
}
