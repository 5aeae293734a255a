package httpapi

import (
	"errors"
	"net/http"
	"strings"

	usersvc "github.com/verse-social/verse/internal/app/services/users"
	"github.com/verse-social/verse/internal/app/storage"
)

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, token, err := h.app.Users.Signup(r.Context(), payload.Username, payload.Email, payload.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"token": token, "user": u})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, token, err := h.app.Users.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "user": u})
}

// logout exists for client symmetry; tokens are stateless so the server has
// nothing to revoke.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, err := h.app.Users.Get(r.Context(), callerID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	users, err := h.app.Users.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handler) userResources(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/users")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.getUser(w, r, id)
		return
	}

	switch parts[1] {
	case "follow":
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		following, err := h.app.Users.ToggleFollow(r.Context(), callerID(r), id)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"following": following})

	case "update-profile":
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.updateProfile(w, r, id)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// getUser resolves the segment as an ID first, then as a username so profile
// pages can link either way.
func (h *handler) getUser(w http.ResponseWriter, r *http.Request, key string) {
	u, err := h.app.Users.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		u, err = h.app.Users.GetByUsername(r.Context(), key)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request, id string) {
	var upd usersvc.ProfileUpdate

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		pic, err := h.uploads.save(r, "profilePic")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		upd.ProfilePic = pic
		upd.Bio = r.FormValue("bio")
		upd.Organization = r.FormValue("organization")
		if raw := r.FormValue("skills"); raw != "" {
			upd.Skills = strings.Split(raw, ",")
		}
	} else {
		var payload struct {
			ProfilePic   string   `json:"profilePic"`
			Bio          string   `json:"bio"`
			Organization string   `json:"organization"`
			Skills       []string `json:"skills"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		upd = usersvc.ProfileUpdate{
			ProfilePic:   payload.ProfilePic,
			Bio:          payload.Bio,
			Organization: payload.Organization,
			Skills:       payload.Skills,
		}
	}

	u, err := h.app.Users.UpdateProfile(r.Context(), callerID(r), id, upd)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
