// Package admintest provides an in-memory admin.API for tests.
package admintest

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/unkn0wn-root/editcache/admin"
)

var _ admin.API = (*Fake)(nil)

// Fake keeps users, roles and permissions in memory and records every call.
// Fail injects an error for the named method ("DeleteOverride", ...); a key of
// the form "Method:arg" fails only calls whose first id argument after the
// user id matches.
type Fake struct {
	mu          sync.Mutex
	Users       map[string]admin.User
	Roles       []admin.Role
	Permissions []admin.Permission
	Fail        map[string]error
	// Partial makes mutations answer with a PartialRecord instead of the full user.
	Partial bool
	// UploadNoBody makes UploadAttachments answer with admin.NoBody.
	UploadNoBody bool

	calls  []string
	counts map[string]int
	nextID int
}

func New() *Fake {
	return &Fake{Users: map[string]admin.User{}, Fail: map[string]error{}, counts: map[string]int{}}
}

// Calls returns the recorded calls as "Method" or "Method:arg".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Count returns how many times method was called.
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[method]
}

func (f *Fake) SetUser(u admin.User) {
	f.mu.Lock()
	f.Users[u.ID] = u
	f.mu.Unlock()
}

func (f *Fake) User(id string) admin.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Users[id]
}

func (f *Fake) SetFail(key string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.Fail, key)
	} else {
		f.Fail[key] = err
	}
	f.mu.Unlock()
}

// record must be called with mu held.
func (f *Fake) record(method, arg string) error {
	f.counts[method]++
	if arg == "" {
		f.calls = append(f.calls, method)
	} else {
		f.calls = append(f.calls, method+":"+arg)
	}
	if err := f.Fail[method+":"+arg]; err != nil {
		return err
	}
	return f.Fail[method]
}

func (f *Fake) user(id string) (admin.User, error) {
	u, ok := f.Users[id]
	if !ok {
		return admin.User{}, &admin.APIError{Op: "fetch user", Status: 404, Code: admin.CodeNotFound}
	}
	return u, nil
}

func (f *Fake) FetchUser(_ context.Context, id string) (admin.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FetchUser", ""); err != nil {
		return admin.User{}, err
	}
	u, err := f.user(id)
	if err != nil {
		return admin.User{}, err
	}
	return admin.Merge(admin.User{}, admin.FullRecord{User: u}), nil
}

func (f *Fake) FetchRoles(context.Context) ([]admin.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FetchRoles", ""); err != nil {
		return nil, err
	}
	return slices.Clone(f.Roles), nil
}

func (f *Fake) FetchPermissions(context.Context) ([]admin.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FetchPermissions", ""); err != nil {
		return nil, err
	}
	return slices.Clone(f.Permissions), nil
}

// mutate applies change to the stored user and answers the way the server does.
func (f *Fake) mutate(id string, partial admin.PartialRecord) (admin.Response, error) {
	u, err := f.user(id)
	if err != nil {
		return nil, err
	}
	u = admin.Merge(u, partial)
	f.Users[id] = u
	if f.Partial {
		return partial, nil
	}
	return admin.FullRecord{User: admin.Merge(admin.User{}, admin.FullRecord{User: u})}, nil
}

func (f *Fake) UpdateProfile(_ context.Context, id string, p admin.ProfileChange) (admin.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateProfile", ""); err != nil {
		return nil, err
	}
	return f.mutate(id, admin.PartialRecord{DisplayName: &p.DisplayName, Email: &p.Email, Phone: &p.Phone})
}

func (f *Fake) SetStatus(_ context.Context, id string, s admin.Status) (admin.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetStatus", string(s)); err != nil {
		return nil, err
	}
	return f.mutate(id, admin.PartialRecord{Status: &s})
}

func (f *Fake) AssignRoles(_ context.Context, id string, roleIDs []string) (admin.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AssignRoles", ""); err != nil {
		return nil, err
	}
	return f.mutate(id, admin.PartialRecord{RoleIDs: append([]string{}, roleIDs...)})
}

func (f *Fake) UpsertOverride(_ context.Context, id string, o admin.Override) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpsertOverride", o.PermissionID); err != nil {
		return err
	}
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.Overrides = slices.DeleteFunc(slices.Clone(u.Overrides), func(x admin.Override) bool { return x.PermissionID == o.PermissionID })
	u.Overrides = append(u.Overrides, o)
	f.Users[id] = u
	return nil
}

func (f *Fake) DeleteOverride(_ context.Context, id, permissionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteOverride", permissionID); err != nil {
		return err
	}
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.Overrides = slices.DeleteFunc(slices.Clone(u.Overrides), func(x admin.Override) bool { return x.PermissionID == permissionID })
	f.Users[id] = u
	return nil
}

func (f *Fake) UploadAttachments(_ context.Context, id string, files []admin.Upload) (admin.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UploadAttachments", ""); err != nil {
		return nil, err
	}
	u, err := f.user(id)
	if err != nil {
		return nil, err
	}
	atts := slices.Clone(u.Attachments)
	for _, file := range files {
		if file.Body != nil {
			_, _ = io.Copy(io.Discard, file.Body)
		}
		f.nextID++
		atts = append(atts, admin.Attachment{
			ID:          fmt.Sprintf("att-%d", f.nextID),
			Name:        file.Name,
			Size:        file.Size,
			ContentType: file.ContentType,
			UploadedAt:  time.Unix(int64(f.nextID), 0).UTC(),
		})
	}
	resp, err := f.mutate(id, admin.PartialRecord{Attachments: atts})
	if err != nil {
		return nil, err
	}
	if f.UploadNoBody {
		return admin.NoBody{}, nil
	}
	return resp, nil
}

func (f *Fake) DeleteAttachment(_ context.Context, id, attachmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteAttachment", attachmentID); err != nil {
		return err
	}
	u, err := f.user(id)
	if err != nil {
		return err
	}
	u.Attachments = slices.DeleteFunc(slices.Clone(u.Attachments), func(a admin.Attachment) bool { return a.ID == attachmentID })
	f.Users[id] = u
	return nil
}

func (f *Fake) SetAvatar(_ context.Context, id string, file admin.Upload) (admin.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetAvatar", file.Name); err != nil {
		return nil, err
	}
	url := "/avatars/" + id + "/" + file.Name
	return f.mutate(id, admin.PartialRecord{AvatarURL: &url})
}

func (f *Fake) SetPin(_ context.Context, id string, c admin.PinChange) (admin.PinState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetPin", ""); err != nil {
		return admin.PinState{}, err
	}
	u, err := f.user(id)
	if err != nil {
		return admin.PinState{}, err
	}
	switch {
	case c.Remove:
		u.HasCredential, u.CredentialEnabled = false, false
	case c.PIN != "":
		u.HasCredential, u.CredentialEnabled = true, true
	}
	if c.Enabled != nil && u.HasCredential {
		u.CredentialEnabled = *c.Enabled
	}
	f.Users[id] = u
	return u.Pin(), nil
}
