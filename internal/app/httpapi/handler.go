// Package httpapi exposes the REST surface of the application. Routing uses
// the standard mux with manual path splitting; every response body is JSON
// and errors carry a single message field.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	app "github.com/verse-social/verse/internal/app"
	"github.com/verse-social/verse/internal/app/apperr"
	"github.com/verse-social/verse/internal/app/auth"
	"github.com/verse-social/verse/internal/app/domain/challenge"
	"github.com/verse-social/verse/internal/app/metrics"
	"github.com/verse-social/verse/internal/app/storage"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app     *app.Application
	uploads *uploadStore
}

// Options tunes handler construction.
type Options struct {
	// UploadDir is where multipart media lands; served back under /uploads/.
	// Empty defaults to "uploads".
	UploadDir string
}

// NewHandler returns a mux exposing the REST API, the websocket gateway and
// the operational endpoints.
func NewHandler(application *app.Application, opts Options) http.Handler {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	h := &handler{app: application, uploads: newUploadStore(opts.UploadDir)}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/ws", application.Gateway)
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(opts.UploadDir))))

	mux.HandleFunc("/api/users/signup", h.signup)
	mux.HandleFunc("/api/users/login", h.login)
	mux.HandleFunc("/api/users/logout", h.logout)
	mux.HandleFunc("/api/users/me", h.requireAuth(h.me))
	mux.HandleFunc("/api/users", h.requireAuth(h.listUsers))
	mux.HandleFunc("/api/users/", h.requireAuth(h.userResources))

	mux.HandleFunc("/api/posts", h.requireAuth(h.createPost))
	mux.HandleFunc("/api/posts/", h.requireAuth(h.postResources))

	mux.HandleFunc("/api/messages", h.requireAuth(h.sendMessage))
	mux.HandleFunc("/api/messages/", h.requireAuth(h.messageResources))

	mux.HandleFunc("/api/challenges", h.requireAuth(h.matchupCollection(challenge.KindChallenge)))
	mux.HandleFunc("/api/challenges/", h.requireAuth(h.matchupResources(challenge.KindChallenge)))
	mux.HandleFunc("/api/polls", h.requireAuth(h.matchupCollection(challenge.KindPoll)))
	mux.HandleFunc("/api/polls/", h.requireAuth(h.matchupResources(challenge.KindPoll)))

	return mux
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth verifies the bearer token and stashes the caller's user ID in
// the request context.
func (h *handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, errors.New("invalid Authorization header"))
			return
		}

		claims, err := h.app.Tokens.Verify(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next(w, r.WithContext(ctx))
	}
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// pathParts splits the request path after the given prefix.
func pathParts(r *http.Request, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}

// respondError maps sentinel errors to HTTP status codes.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, apperr.ErrNotAuthenticated), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, apperr.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
