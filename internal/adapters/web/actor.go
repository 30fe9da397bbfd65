package web

import (
	"net/http"
	"strconv"
	"strings"

	"cafepos/internal/core"
)

// actorFromRequest builds the caller identity from trusted gateway headers.
// Authentication itself happens upstream (reverse proxy or API gateway); the
// service only consumes the resolved identity. Requests without an actor id
// are anonymous and fail every permission check.
func actorFromRequest(r *http.Request) (core.Actor, bool) {
	rawID := r.Header.Get("X-Actor-ID")
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		return core.Actor{}, false
	}

	return core.Actor{
		ID:          id,
		Username:    r.Header.Get("X-Actor-Username"),
		Roles:       splitAndTrim(r.Header.Get("X-Actor-Roles")),
		IsStaff:     headerBool(r, "X-Actor-Staff"),
		IsSuperuser: headerBool(r, "X-Actor-Superuser"),
	}, true
}

func headerBool(r *http.Request, name string) bool {
	switch strings.ToLower(r.Header.Get(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// RequireActor rejects requests without a resolvable actor identity.
func (h *Handler) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFromRequest(r); !ok {
			writeError(w, r, "missing or invalid actor identity", "UNAUTHENTICATED", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
