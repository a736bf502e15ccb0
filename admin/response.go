package admin

import (
	"slices"
	"time"

	"github.com/unkn0wn-root/editcache"
)

// Response is what a mutation call returned. It is one of FullRecord,
// PartialRecord or NoBody.
type Response interface {
	isResponse()
}

// FullRecord replaces the cached user.
type FullRecord struct {
	User User
}

// PartialRecord carries only the fields the server echoed. A nil pointer or a
// nil slice means the field was absent; an empty non-nil slice clears it.
type PartialRecord struct {
	DisplayName       *string
	Email             *string
	Phone             *string
	Status            *Status
	AvatarURL         *string
	RoleIDs           []string
	Overrides         []Override
	Attachments       []Attachment
	HasCredential     *bool
	CredentialEnabled *bool
	UpdatedAt         *time.Time
}

// NoBody is a successful call without a response body.
type NoBody struct{}

func (FullRecord) isResponse()    {}
func (PartialRecord) isResponse() {}
func (NoBody) isResponse()        {}

// Merge returns cur updated with r. cur is never modified.
func Merge(cur User, r Response) User {
	switch r := r.(type) {
	case FullRecord:
		return clone(r.User)
	case PartialRecord:
		next := clone(cur)
		setIf(&next.DisplayName, r.DisplayName)
		setIf(&next.Email, r.Email)
		setIf(&next.Phone, r.Phone)
		setIf(&next.Status, r.Status)
		setIf(&next.AvatarURL, r.AvatarURL)
		setIf(&next.HasCredential, r.HasCredential)
		setIf(&next.CredentialEnabled, r.CredentialEnabled)
		setIf(&next.UpdatedAt, r.UpdatedAt)
		if r.RoleIDs != nil {
			next.RoleIDs = slices.Clone(r.RoleIDs)
		}
		if r.Overrides != nil {
			next.Overrides = slices.Clone(r.Overrides)
		}
		if r.Attachments != nil {
			next.Attachments = slices.Clone(r.Attachments)
		}
		return next
	default:
		return cur
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func clone(u User) User {
	u.RoleIDs = slices.Clone(u.RoleIDs)
	u.Overrides = slices.Clone(u.Overrides)
	u.Attachments = slices.Clone(u.Attachments)
	return u
}

// PatchOf adapts r for Loader.MergePatch.
func PatchOf(r Response) editcache.Patch[User] {
	return editcache.PatchFunc[User](func(cur User) User { return Merge(cur, r) })
}

// WithoutAttachment drops one attachment by id.
func WithoutAttachment(id string) editcache.Patch[User] {
	return editcache.PatchFunc[User](func(cur User) User {
		next := clone(cur)
		next.Attachments = slices.DeleteFunc(next.Attachments, func(a Attachment) bool { return a.ID == id })
		if next.Attachments == nil {
			next.Attachments = []Attachment{}
		}
		return next
	})
}

// WithPin applies the flags returned by a PIN mutation.
func WithPin(p PinState) editcache.Patch[User] {
	return PatchOf(PartialRecord{HasCredential: &p.HasCredential, CredentialEnabled: &p.CredentialEnabled})
}

// WithOverrides replaces the override set after a plan was applied.
func WithOverrides(set []Override) editcache.Patch[User] {
	if set == nil {
		set = []Override{}
	}
	return PatchOf(PartialRecord{Overrides: set})
}
