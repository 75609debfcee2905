// Package session resolves which session an HTTP request acts on:
// an authenticated user (via bearer token) or an anonymous guest (via
// the X-Guest-Session header).
package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"shopsync/internal/model"
	"shopsync/internal/reconcile"
)

// GuestHeader carries the guest session ID. The service mints one on
// the first request and the frontend echoes it back afterwards.
const GuestHeader = "X-Guest-Session"

// Identity is the resolved caller of one request.
type Identity struct {
	// UserID is set for authenticated callers.
	UserID string

	// Token is the verified bearer token, kept for remote collection
	// calls on behalf of the user.
	Token string

	// GuestID is set for anonymous callers.
	GuestID string

	// NewGuest marks a GuestID minted during this request; the handler
	// echoes it back so the frontend can persist it.
	NewGuest bool

	Authenticated bool
}

// SessionID returns the collection store key for this identity.
func (id Identity) SessionID() string {
	if id.Authenticated {
		return id.UserID
	}
	return id.GuestID
}

// Session converts the identity for the reconciler.
func (id Identity) Session() reconcile.Session {
	return reconcile.Session{
		ID:            id.SessionID(),
		Token:         id.Token,
		Authenticated: id.Authenticated,
	}
}

// Resolver turns requests into identities.
type Resolver struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewResolver creates a resolver. verifier may be nil in guest-only
// setups; bearer tokens are then rejected outright.
func NewResolver(verifier TokenVerifier, logger *slog.Logger) *Resolver {
	return &Resolver{verifier: verifier, logger: logger}
}

// Resolve determines the caller of r.
//
// A bearer token must verify or the request fails; a bad token never
// falls back to a guest session, that would silently split the user's
// cart in two. Without a token the guest header is used as-is, or a
// fresh guest ID is minted.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (Identity, error) {
	return r.ResolveCredentials(ctx, bearerToken(req), req.Header.Get(GuestHeader))
}

// ResolveCredentials resolves raw credentials from a non-HTTP transport.
// Same rules as Resolve: a token must verify, and only a tokenless call
// may act as a guest. An empty guestID mints a new guest session.
func (r *Resolver) ResolveCredentials(ctx context.Context, token, guestID string) (Identity, error) {
	if token != "" {
		if r.verifier == nil {
			return Identity{}, model.NewUnauthorizedError("authenticated sessions are not enabled")
		}
		userID, err := r.verifier.Verify(ctx, token)
		if err != nil {
			r.logger.Warn("token verification failed", slog.String("error", err.Error()))
			return Identity{}, err
		}
		return Identity{UserID: userID, Token: token, Authenticated: true}, nil
	}
	if guestID = strings.TrimSpace(guestID); guestID != "" {
		return Identity{GuestID: guestID}, nil
	}
	return Identity{GuestID: uuid.NewString(), NewGuest: true}, nil
}

// bearerToken extracts the token from an Authorization header, or ""
// if the header is absent or not a bearer scheme.
func bearerToken(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
