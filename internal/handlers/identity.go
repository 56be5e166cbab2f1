// internal/handlers/identity.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/auth"
	"github.com/jason-s-yu/omi/internal/models"
)

const authCookie = "auth_token"

// Profiles is the optional profile directory. When set, it overrides the
// display fields carried in the token.
type Profiles interface {
	LookupIdentity(ctx context.Context, id string) (models.Identity, error)
	UpsertProfile(ctx context.Context, id models.Identity) error
}

// EnsureIdentity returns the caller's identity from the auth_token cookie.
// A caller without a valid token gets a fresh guest identity and cookie.
func (rs *RoomServer) EnsureIdentity(w http.ResponseWriter, r *http.Request) (models.Identity, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), authCookie)
	if token != "" {
		if id, err := auth.AuthenticateJWT(token); err == nil {
			return rs.resolve(r.Context(), id), nil
		}
	}
	guest := models.Identity{ID: uuid.NewString()}
	guest.DisplayName = "Guest " + guest.ID[:4]
	if err := rs.issue(r.Context(), w, guest); err != nil {
		return models.Identity{}, err
	}
	return guest, nil
}

// resolve prefers the directory's display fields over the token's.
func (rs *RoomServer) resolve(ctx context.Context, id models.Identity) models.Identity {
	if rs.Profiles == nil {
		return id
	}
	stored, err := rs.Profiles.LookupIdentity(ctx, id.ID)
	if err != nil {
		return id
	}
	return stored
}

func (rs *RoomServer) issue(ctx context.Context, w http.ResponseWriter, id models.Identity) error {
	if rs.Profiles != nil {
		if err := rs.Profiles.UpsertProfile(ctx, id); err != nil {
			rs.Logger.Warnf("failed to store profile %s: %v", id.ID, err)
		}
	}
	token, err := auth.CreateJWT(id)
	if err != nil {
		return fmt.Errorf("failed to create identity token: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return nil
}

type identityRequest struct {
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

// IdentityHandler sets the caller's display name and avatar, keeping their
// player id, and reissues the cookie.
func (rs *RoomServer) IdentityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, err := rs.EnsureIdentity(w, r)
	if err != nil {
		http.Error(w, "could not establish identity", http.StatusInternalServerError)
		return
	}

	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad identity payload", http.StatusBadRequest)
		return
	}
	if name := strings.TrimSpace(req.DisplayName); name != "" {
		if len(name) > 32 {
			http.Error(w, "display name too long", http.StatusBadRequest)
			return
		}
		id.DisplayName = name
	}
	if req.AvatarRef != "" {
		id.AvatarRef = req.AvatarRef
	}
	if err := rs.issue(r.Context(), w, id); err != nil {
		http.Error(w, "could not issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
