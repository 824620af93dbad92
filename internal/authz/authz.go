// Package authz decides what an authenticated actor may do with a document.
// Decisions are pure functions of the actor and the document's organization
// and owner; no tenant state is held anywhere else.
package authz

import "strings"

// Roles recognised by the service. Anything else is rejected before a
// document is ever looked up.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Actor is the authenticated principal every operation runs as. Identity is
// resolved upstream (gateway or token); this type only carries it.
type Actor struct {
	UserID         string
	OrganizationID string
	Role           string
}

// Valid reports whether the actor is structurally usable: non-empty ids and
// a known role.
func (a Actor) Valid() bool {
	return a.UserID != "" && a.OrganizationID != "" && KnownRole(a.Role)
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// KnownRole reports whether role is one the service recognises.
func KnownRole(role string) bool {
	switch strings.ToLower(role) {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// CanRead reports whether the actor may read a document owned by ownerID in
// orgID. Cross-organization access is always denied, regardless of role.
func CanRead(a Actor, orgID, ownerID string) bool {
	if a.OrganizationID != orgID {
		return false
	}
	if a.IsAdmin() {
		return true
	}
	return a.UserID == ownerID
}

// CanWrite reports whether the actor may modify or delete a document owned
// by ownerID in orgID. The rule currently matches CanRead; callers must not
// rely on that and should use the entry point matching their operation.
func CanWrite(a Actor, orgID, ownerID string) bool {
	if a.OrganizationID != orgID {
		return false
	}
	if a.IsAdmin() {
		return true
	}
	return a.UserID == ownerID
}

// Scope narrows a list query before it reaches the index: always to the
// actor's organization, and for non-admins to their own documents.
type Scope struct {
	OrganizationID string
	OwnerID        string // "" means every owner in the organization
}

// ListScope returns the widest scope the actor may list.
func ListScope(a Actor) Scope {
	s := Scope{OrganizationID: a.OrganizationID}
	if !a.IsAdmin() {
		s.OwnerID = a.UserID
	}
	return s
}
