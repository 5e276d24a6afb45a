// Package models defines the client-side data models of the Stuff Happens
// auth client.
package models

import "time"

// User is the app-local identity record. It is only ever produced by the auth
// gateway from a backend user record.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile metadata keys understood by the backend.
const (
	MetaFullName  = "full_name"
	MetaName      = "name"
	MetaAvatarURL = "avatar_url"
	MetaPicture   = "picture"
)

// ProfileUpdate is a partial profile change. Nil fields are left untouched.
type ProfileUpdate struct {
	FullName  *string
	AvatarURL *string
}

// IsEmpty reports whether the update changes nothing.
func (p ProfileUpdate) IsEmpty() bool {
	return p.FullName == nil && p.AvatarURL == nil
}

// Metadata returns the backend metadata patch for the set fields.
func (p ProfileUpdate) Metadata() map[string]any {
	data := make(map[string]any, 2)
	if p.FullName != nil {
		data[MetaFullName] = *p.FullName
	}
	if p.AvatarURL != nil {
		data[MetaAvatarURL] = *p.AvatarURL
	}
	return data
}
