package httpapi

import (
	"net/http"
	"strconv"
)

func (h *handler) createPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var text, img string
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var err error
		img, err = h.uploads.save(r, "img")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		text = r.FormValue("text")
	} else {
		var payload struct {
			Text string `json:"text"`
			Img  string `json:"img"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		text, img = payload.Text, payload.Img
	}

	p, err := h.app.Posts.Create(r.Context(), callerID(r), text, img)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) postResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/posts")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "feed":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.feed(w, r)

	case "like":
		if len(parts) != 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, liked, err := h.app.Posts.ToggleLike(r.Context(), parts[1], callerID(r))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"liked": liked, "likes": p.Likes})

	case "reply":
		if len(parts) != 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		p, err := h.app.Posts.AddReply(r.Context(), parts[1], callerID(r), payload.Text)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)

	default:
		if len(parts) != 1 || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		p, err := h.app.Posts.Get(r.Context(), parts[0])
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (h *handler) feed(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 0)

	posts, err := h.app.Posts.Feed(r.Context(), callerID(r), page, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
