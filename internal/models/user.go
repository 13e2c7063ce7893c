// Package models defines the records exchanged through the realtime store:
// users and direct messages.
package models

import (
	"slices"
	"time"
)

// Role classifies an account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleAI    Role = "ai"
)

// User is an identity record. ID never changes once created, and
// ConsentedViewers only ever grows: disclosure of the phone is one-way.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
	Status   string    `json:"status"`
	Bio      string    `json:"bio,omitempty"`
	Avatar   string    `json:"avatar"`
	Role     Role      `json:"role,omitempty"`
	// IsVerified is toggled by the verifier operator only.
	IsVerified bool `json:"isVerified,omitempty"`
	// ConsentedViewers lists viewer ids allowed to see Phone unmasked.
	ConsentedViewers []string `json:"consentedPhones,omitempty"`
}

// HasConsented reports whether viewerID may see the user's phone.
func (u User) HasConsented(viewerID string) bool {
	return slices.Contains(u.ConsentedViewers, viewerID)
}

// WithConsent returns a copy of u with viewerID added to the consent set.
// The second result is false when viewerID was already present, in which
// case the copy is identical to u.
func (u User) WithConsent(viewerID string) (User, bool) {
	out := u
	out.ConsentedViewers = slices.Clone(u.ConsentedViewers)
	if u.HasConsented(viewerID) {
		return out, false
	}
	out.ConsentedViewers = append(out.ConsentedViewers, viewerID)
	return out, true
}

// Clone returns a deep copy.
func (u User) Clone() User {
	u.ConsentedViewers = slices.Clone(u.ConsentedViewers)
	return u
}
