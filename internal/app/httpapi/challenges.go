package httpapi

import (
	"net/http"

	"github.com/verse-social/verse/internal/app/domain/challenge"
)

// matchupCollection handles the /api/challenges and /api/polls collection
// endpoints; the kind comes from the route.
func (h *handler) matchupCollection(kind challenge.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.createMatchup(w, r, kind)
		case http.MethodGet:
			result, err := h.app.Challenges.List(r.Context(), kind, callerID(r))
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (h *handler) createMatchup(w http.ResponseWriter, r *http.Request, kind challenge.Kind) {
	var skill, submission string
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var err error
		submission, err = h.uploads.save(r, "submission")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		skill = r.FormValue("skill")
	} else {
		var payload struct {
			Skill      string `json:"skill"`
			Submission string `json:"submission"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		skill, submission = payload.Skill, payload.Submission
	}

	result, err := h.app.Challenges.Create(r.Context(), kind, skill, submission, callerID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *handler) matchupResources(kind challenge.Kind) http.HandlerFunc {
	prefix := "/api/challenges"
	if kind == challenge.KindPoll {
		prefix = "/api/polls"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		parts := pathParts(r, prefix)
		if len(parts) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if parts[0] == "cancel" {
			if r.Method != http.MethodPost && r.Method != http.MethodDelete {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			c, err := h.app.Challenges.Cancel(r.Context(), callerID(r))
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, c)
			return
		}

		id := parts[0]
		if len(parts) == 1 {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			c, err := h.app.Challenges.Get(r.Context(), id, callerID(r))
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, c)
			return
		}

		switch parts[1] {
		case "submission":
			if r.Method != http.MethodPost && r.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.submitMatchupMedia(w, r, id)

		case "vote":
			if r.Method != http.MethodPost && r.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			var payload struct {
				Option challenge.Option `json:"option"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			result, err := h.app.Challenges.Vote(r.Context(), id, callerID(r), payload.Option)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)

		case "finalize":
			if r.Method != http.MethodPost && r.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			result, err := h.app.Challenges.Finalize(r.Context(), id)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (h *handler) submitMatchupMedia(w http.ResponseWriter, r *http.Request, id string) {
	var submission string
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var err error
		submission, err = h.uploads.save(r, "submission")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	} else {
		var payload struct {
			Submission string `json:"submission"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		submission = payload.Submission
	}

	c, err := h.app.Challenges.SubmitMedia(r.Context(), id, callerID(r), submission)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
