package restclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/unkn0wn-root/editcache/admin"
)

// userWire mirrors the user JSON with every field optional, so a response can
// be told apart as full or partial. A nil slice is a key the server left out.
type userWire struct {
	ID                *string            `json:"id"`
	Username          *string            `json:"username"`
	DisplayName       *string            `json:"displayName"`
	Email             *string            `json:"email"`
	Phone             *string            `json:"phone"`
	Status            *admin.Status      `json:"status"`
	AvatarURL         *string            `json:"avatarUrl"`
	RoleIDs           []string           `json:"roleIds"`
	Overrides         []admin.Override   `json:"overrides"`
	Attachments       []admin.Attachment `json:"attachments"`
	HasCredential     *bool              `json:"hasCredential"`
	CredentialEnabled *bool              `json:"credentialEnabled"`
	UpdatedAt         *time.Time         `json:"updatedAt"`
}

func (w userWire) partial() admin.PartialRecord {
	return admin.PartialRecord{
		DisplayName:       w.DisplayName,
		Email:             w.Email,
		Phone:             w.Phone,
		Status:            w.Status,
		AvatarURL:         w.AvatarURL,
		RoleIDs:           w.RoleIDs,
		Overrides:         w.Overrides,
		Attachments:       w.Attachments,
		HasCredential:     w.HasCredential,
		CredentialEnabled: w.CredentialEnabled,
		UpdatedAt:         w.UpdatedAt,
	}
}

func (w userWire) user() admin.User {
	u := admin.Merge(admin.User{}, w.partial())
	if w.ID != nil {
		u.ID = *w.ID
	}
	if w.Username != nil {
		u.Username = *w.Username
	}
	return u
}

// complete reports whether w can replace a cached user: it names the user and
// carries every collection. Mutations often echo the id with only the fields
// they touched.
func (w userWire) complete() bool {
	return w.ID != nil && *w.ID != "" &&
		w.RoleIDs != nil && w.Overrides != nil && w.Attachments != nil
}

func (w userWire) response() admin.Response {
	if w.complete() {
		return admin.FullRecord{User: w.user()}
	}
	return w.partial()
}

// readResponse classifies a 2xx mutation response. No content or a blank body
// is NoBody.
func readResponse(op string, resp *http.Response) (admin.Response, error) {
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return admin.NoBody{}, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return admin.NoBody{}, nil
	}
	var w userWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, err)
	}
	return w.response(), nil
}
