package identity

import "net/http"

// Roles known to the planner. Only project-level deletion is gated on
// role; category and scenario edits are open to any identified user.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// User is the acting identity attached to a request.
type User struct {
	ID   string
	Role string
}

// CanDeleteProject reports whether the user may delete whole projects.
func (u User) CanDeleteProject() bool {
	return u.Role == RoleAdmin
}

// Provider resolves the acting user for a request. The real system
// fronts this service with an authenticating proxy; the provider only
// reads what the proxy asserted.
type Provider interface {
	UserFromRequest(r *http.Request) User
}

// HeaderProvider reads the identity from trusted headers.
type HeaderProvider struct {
	// DefaultRole is assumed when the role header is absent.
	DefaultRole string
}

func (p HeaderProvider) UserFromRequest(r *http.Request) User {
	u := User{
		ID:   r.Header.Get("X-User-Id"),
		Role: r.Header.Get("X-User-Role"),
	}
	if u.ID == "" {
		u.ID = "anonymous"
	}
	if u.Role == "" {
		u.Role = p.DefaultRole
	}
	return u
}
