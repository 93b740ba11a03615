package services

import (
	"github.com/google/uuid"
)

// Actor identifies who is performing a mutation. Every mutating operation
// threads one through so activity attribution never depends on ambient
// request state. The zero value is the unknown actor.
type Actor struct {
	UserID *uuid.UUID
	Name   string
}

// UserActor is an operation performed by a signed-in user.
func UserActor(id uuid.UUID, name string) Actor {
	return Actor{UserID: &id, Name: name}
}

// SystemActor is an operation performed by an automation or background job.
func SystemActor() Actor {
	return Actor{Name: "System"}
}

// IsUser reports whether the actor is a resolvable user.
func (a Actor) IsUser() bool { return a.UserID != nil }

// Label is the display name used in activity log lines. Falls back to
// "Someone" when the actor could not be resolved.
func (a Actor) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return "Someone"
}
