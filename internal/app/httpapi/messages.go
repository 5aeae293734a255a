package httpapi

import (
	"net/http"
)

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var receiver, text, file string
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var err error
		file, err = h.uploads.save(r, "file")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		receiver = r.FormValue("receiver")
		text = r.FormValue("text")
	} else {
		var payload struct {
			Receiver string `json:"receiver"`
			Text     string `json:"text"`
			File     string `json:"file"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		receiver, text, file = payload.Receiver, payload.Text, payload.File
	}

	m, err := h.app.Messages.Send(r.Context(), callerID(r), receiver, text, file)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handler) messageResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/messages")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "threads":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		threads, err := h.app.Messages.Threads(r.Context(), callerID(r))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, threads)

	case "conversation":
		if len(parts) < 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		otherID := parts[1]

		if len(parts) == 3 && parts[2] == "read" {
			if r.Method != http.MethodPost && r.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			modified, err := h.app.Messages.MarkRead(r.Context(), callerID(r), otherID)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"modified": modified})
			return
		}

		if len(parts) != 2 || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		msgs, err := h.app.Messages.Conversation(r.Context(), callerID(r), otherID, queryInt(r, "page", 1), queryInt(r, "limit", 0))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
