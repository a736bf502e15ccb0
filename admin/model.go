// Package admin holds the user-administration model shared by the stores,
// the REST collaborator and the edit workflow.
package admin

import (
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusDisabled }

// Effect is the outcome of a per-user permission override.
type Effect string

const (
	Allow Effect = "ALLOW"
	Deny  Effect = "DENY"
)

func (e Effect) Valid() bool { return e == Allow || e == Deny }

// Override is unique per (user, permission).
type Override struct {
	PermissionID string `json:"permissionId"`
	Effect       Effect `json:"effect"`
}

func (o Override) Valid() bool { return o.PermissionID != "" && o.Effect.Valid() }

type Attachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	URL         string    `json:"url,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// User is the detail record cached per user id.
type User struct {
	ID                string       `json:"id"`
	Username          string       `json:"username"`
	DisplayName       string       `json:"displayName"`
	Email             string       `json:"email"`
	Phone             string       `json:"phone,omitempty"`
	Status            Status       `json:"status"`
	AvatarURL         string       `json:"avatarUrl,omitempty"`
	RoleIDs           []string     `json:"roleIds"`
	Overrides         []Override   `json:"overrides"`
	Attachments       []Attachment `json:"attachments"`
	HasCredential     bool         `json:"hasCredential"`
	CredentialEnabled bool         `json:"credentialEnabled"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// Pin reports the PIN flags of u.
func (u User) Pin() PinState {
	return PinState{HasCredential: u.HasCredential, CredentialEnabled: u.CredentialEnabled}
}

// HasRole reports whether roleID is assigned to u.
func (u User) HasRole(roleID string) bool {
	for _, id := range u.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

type Role struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Owner         bool     `json:"owner,omitempty"`
	PermissionIDs []string `json:"permissionIds"`
}

type Permission struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Group       string `json:"group,omitempty"`
	Description string `json:"description,omitempty"`
}

// PinState is what every PIN mutation returns at minimum.
type PinState struct {
	HasCredential     bool `json:"hasCredential"`
	CredentialEnabled bool `json:"credentialEnabled"`
}

// PinChange sets a new PIN, toggles it, or removes it. Zero fields are left
// untouched on the server.
type PinChange struct {
	PIN     string `json:"pin,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	Remove  bool   `json:"remove,omitempty"`
}

// ProfileChange carries the editable profile fields of a user.
type ProfileChange struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}
