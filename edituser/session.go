// Package edituser is the controller behind the "edit user" modal. It loads
// the catalogs and the detail record through the stores, keeps the cache
// consistent after every mutation and guards unsaved edits on close.
package edituser

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/editcache"
	"github.com/unkn0wn-root/editcache/admin"
	"github.com/unkn0wn-root/editcache/admincache"
	"github.com/unkn0wn-root/editcache/dirty"
	"github.com/unkn0wn-root/editcache/events"
	"github.com/unkn0wn-root/editcache/optimistic"
	"github.com/unkn0wn-root/editcache/overrides"
)

const (
	defaultFlashTTL     = 3 * time.Second
	defaultSettlePasses = 2
)

var (
	ErrNotOpen     = errors.New("edituser: session is not open")
	ErrInvalidEdit = errors.New("edituser: invalid draft")
)

// CloseDecision tells the view what to do with a close attempt.
type CloseDecision int

const (
	// CloseNow: nothing unsaved; the session has been closed.
	CloseNow CloseDecision = iota
	// ConfirmDiscard: unsaved edits; ask before calling Discard or SaveAndClose.
	ConfirmDiscard
)

type Options struct {
	Bus    *events.Bus      // nil => events are not published
	Logger editcache.Logger // nil => Stores.Log
	// FlashTTL is how long a flash message stays; 0 => 3s.
	FlashTTL time.Duration
	// SettlePasses before the dirty baseline is taken; 0 => 2, < 0 => immediately.
	SettlePasses int
}

// Session drives one open modal. Methods are meant to be called from the
// view's goroutine; only the flash timer runs elsewhere.
type Session struct {
	stores *admincache.Stores
	api    admin.API
	bus    *events.Bus
	log    editcache.Logger
	users  *optimistic.Engine[admin.User]
	passes int
	flash  *Flash

	userID string
	base   admin.User // last known server state
	roles  []admin.Role
	perms  []admin.Permission
	draft  *Draft
	guard  *dirty.Guard
	open   bool
}

func New(stores *admincache.Stores, api admin.API, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = stores.Log
	}
	if log == nil {
		log = editcache.NopLogger{}
	}
	passes := opts.SettlePasses
	switch {
	case passes == 0:
		passes = defaultSettlePasses
	case passes < 0:
		passes = 0
	}
	ttl := opts.FlashTTL
	if ttl <= 0 {
		ttl = defaultFlashTTL
	}
	s := &Session{
		stores: stores,
		api:    api,
		bus:    opts.Bus,
		log:    log.With(editcache.Fields{"component": "edituser"}),
		users:  optimistic.New[admin.User](stores.Users, log),
		passes: passes,
		flash:  newFlash(ttl),
	}
	// the modal re-renders as soon as a guess lands and again after a rollback
	s.users.OnApplied(func(ctx context.Context, key string) {
		if key != s.userID {
			return
		}
		if err := s.refresh(ctx); err != nil {
			s.log.Warn("reload after optimistic change", editcache.Fields{"user": key, "err": err})
			return
		}
		s.publishDetail(ctx)
	})
	// capture never fails to build: the func is non-nil
	s.guard, _ = dirty.New(func() any {
		if s.draft == nil {
			return nil
		}
		return s.draft.canonical()
	})
	return s
}

// Open loads roles, permissions and the user concurrently and starts a fresh
// draft. Reopening for another user drops the previous draft.
func (s *Session) Open(ctx context.Context, userID string) error {
	s.Close()

	var (
		u     admin.User
		roles []admin.Role
		perms []admin.Permission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		roles, err = s.stores.AllRoles(gctx)
		return err
	})
	g.Go(func() (err error) {
		perms, err = s.stores.AllPermissions(gctx)
		return err
	})
	g.Go(func() (err error) {
		u, err = s.stores.User(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("open user %q: %w", userID, err)
	}

	s.userID, s.base, s.roles, s.perms = userID, u, roles, perms
	s.draft = draftFrom(u)
	s.open = true
	if err := s.guard.Open(s.passes); err != nil {
		return fmt.Errorf("arm dirty guard: %w", err)
	}
	s.log.Debug("edit session opened", editcache.Fields{"user": userID})
	return nil
}

// Settle reports one completed layout pass.
func (s *Session) Settle() error { return s.guard.Settle() }

func (s *Session) Draft() *Draft                   { return s.draft }
func (s *Session) User() admin.User                { return s.base }
func (s *Session) Roles() []admin.Role             { return s.roles }
func (s *Session) Permissions() []admin.Permission { return s.perms }
func (s *Session) Flash() *Flash                   { return s.flash }
func (s *Session) IsOpen() bool                    { return s.open }
func (s *Session) IsDirty() bool                   { return s.open && s.guard.IsDirty() }

// OwnerSelected reports whether the draft's roles include an owner role.
// Owners hold no overrides, so the toggle is forced off for them on save.
func (s *Session) OwnerSelected() bool {
	return s.draft != nil && admin.HoldsOwner(s.roles, s.draft.RoleIDs)
}

func (s *Session) validate() error {
	d := s.draft
	if !d.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidEdit, d.Status)
	}
	for _, o := range d.Overrides {
		if !o.Valid() {
			return fmt.Errorf("%w: override %+v", ErrInvalidEdit, o)
		}
	}
	return nil
}

// Save sends every changed part of the draft, keeping the cache patched after
// each confirmed call, then re-arms the dirty guard. On error the remaining
// steps are skipped and the draft is kept; the steps that went through become
// the new baseline so a retry only sends what is still missing.
func (s *Session) Save(ctx context.Context) error {
	if !s.open {
		return ErrNotOpen
	}
	if err := s.validate(); err != nil {
		return err
	}
	owner, err := s.send(ctx)
	if err != nil {
		if rerr := s.refresh(ctx); rerr != nil {
			s.log.Warn("reload after failed save", editcache.Fields{"user": s.userID, "err": rerr})
		} else {
			s.publishDetail(ctx)
		}
		return err
	}

	if err := s.refresh(ctx); err != nil {
		return s.fail("reload user", err)
	}
	// the server state is now the draft; align derived fields before re-arming
	d := s.draft
	if owner {
		d.OverridesEnabled, d.Overrides = false, nil
	}
	if err := s.guard.MarkClean(); err != nil {
		return fmt.Errorf("mark clean: %w", err)
	}
	s.publishDetail(ctx)
	s.flash.Show(FlashInfo, "Changes saved")
	return nil
}

// send issues the calls of one Save in order and reports whether the saved
// roles include an owner role.
func (s *Session) send(ctx context.Context) (owner bool, err error) {
	d, base := s.draft, s.base

	if d.DisplayName != base.DisplayName || d.Email != base.Email || d.Phone != base.Phone {
		change := admin.ProfileChange{DisplayName: d.DisplayName, Email: d.Email, Phone: d.Phone}
		if err := s.confirmed(ctx, func(ctx context.Context) (admin.Response, error) {
			return s.api.UpdateProfile(ctx, s.userID, change)
		}); err != nil {
			return false, s.fail("save profile", err)
		}
	}
	if d.Status != base.Status {
		if err := s.confirmed(ctx, func(ctx context.Context) (admin.Response, error) {
			return s.api.SetStatus(ctx, s.userID, d.Status)
		}); err != nil {
			return false, s.fail("save status", err)
		}
	}

	owner = admin.HoldsOwner(s.roles, d.RoleIDs)
	rolesChanged := !slices.Equal(sortedCopy(d.RoleIDs), sortedCopy(base.RoleIDs))
	// a new owner must shed its overrides before the role lands; a former
	// owner needs the role change before overrides are accepted
	if rolesChanged && !owner {
		if err := s.saveRoles(ctx, d.RoleIDs); err != nil {
			return owner, err
		}
	}
	if err := s.saveOverrides(ctx, base.Overrides, d.OverridesEnabled && !owner, d.Overrides); err != nil {
		return owner, err
	}
	if rolesChanged && owner {
		if err := s.saveRoles(ctx, d.RoleIDs); err != nil {
			return owner, err
		}
	}

	if len(d.Pending) > 0 {
		if err := s.uploadPending(ctx, d.Pending); err != nil {
			return owner, s.fail("upload attachments", err)
		}
		d.Pending = nil
	}
	return owner, nil
}

func (s *Session) saveRoles(ctx context.Context, roleIDs []string) error {
	ids := slices.Clone(roleIDs)
	if err := s.confirmed(ctx, func(ctx context.Context) (admin.Response, error) {
		return s.api.AssignRoles(ctx, s.userID, ids)
	}); err != nil {
		return s.fail("save roles", err)
	}
	return nil
}

func (s *Session) saveOverrides(ctx context.Context, prev []admin.Override, enabled bool, next []admin.Override) error {
	plan := overrides.Diff(prev, enabled, next)
	if plan.Empty() {
		return nil
	}
	err := overrides.Apply(ctx, s.api, s.userID, plan)
	applied := plan
	var ae *overrides.ApplyError
	if errors.As(err, &ae) {
		applied = ae.Applied(plan)
	}
	if _, merr := s.stores.Users.MergePatch(ctx, s.userID, admin.WithOverrides(overrides.Result(prev, applied))); merr != nil {
		s.log.Warn("override merge failed; invalidating", editcache.Fields{"user": s.userID, "err": merr})
		_ = s.stores.Users.Invalidate(ctx, s.userID)
	}
	if err != nil {
		return s.fail("save overrides", err)
	}
	return nil
}

func (s *Session) uploadPending(ctx context.Context, files []admin.Upload) error {
	var noBody bool
	err := s.users.Confirmed(ctx, s.userID, func(ctx context.Context) (editcache.Patch[admin.User], error) {
		resp, err := s.api.UploadAttachments(ctx, s.userID, files)
		if err != nil {
			return nil, err
		}
		if _, ok := resp.(admin.NoBody); ok {
			noBody = true
			return nil, nil
		}
		return admin.PatchOf(resp), nil
	})
	if err != nil {
		return err
	}
	if noBody {
		// the new attachment ids are only known to the server
		if err := s.stores.Users.Invalidate(ctx, s.userID); err != nil {
			s.log.Warn("invalidate after upload", editcache.Fields{"user": s.userID, "err": err})
		}
	}
	return nil
}

func (s *Session) confirmed(ctx context.Context, call func(context.Context) (admin.Response, error)) error {
	return s.users.Confirmed(ctx, s.userID, func(ctx context.Context) (editcache.Patch[admin.User], error) {
		resp, err := call(ctx)
		if err != nil {
			return nil, err
		}
		return admin.PatchOf(resp), nil
	})
}

// refresh re-reads the cached user as the new server baseline.
func (s *Session) refresh(ctx context.Context) error {
	u, err := s.stores.User(ctx, s.userID)
	if err != nil {
		return err
	}
	s.base = u
	return nil
}

func (s *Session) fail(step string, err error) error {
	s.flash.Show(FlashError, errorText(err))
	s.log.Warn("edit step failed", editcache.Fields{"user": s.userID, "step": step, "err": err})
	return fmt.Errorf("%s: %w", step, err)
}

func errorText(err error) string {
	var ae *admin.APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "Something went wrong. Please try again."
}

// AttemptClose closes the session unless there are unsaved edits.
func (s *Session) AttemptClose() CloseDecision {
	if s.IsDirty() {
		return ConfirmDiscard
	}
	s.Close()
	return CloseNow
}

// Discard closes the session dropping unsaved edits.
func (s *Session) Discard() { s.Close() }

// SaveAndClose closes only when Save succeeded.
func (s *Session) SaveAndClose(ctx context.Context) error {
	if err := s.Save(ctx); err != nil {
		return err
	}
	s.Close()
	return nil
}

// Close resets the guard and forgets the draft. The flash message is cleared.
func (s *Session) Close() {
	s.guard.Reset()
	s.flash.Cancel()
	s.open = false
	s.draft = nil
	s.userID = ""
	s.base, s.roles, s.perms = admin.User{}, nil, nil
}

// DeleteAttachment removes the attachment from the cache and the modal
// immediately and rolls back by refetch if the server refuses.
func (s *Session) DeleteAttachment(ctx context.Context, attachmentID string) error {
	if !s.open {
		return ErrNotOpen
	}
	err := s.users.Optimistic(ctx, s.userID, admin.WithoutAttachment(attachmentID), func(ctx context.Context) error {
		return s.api.DeleteAttachment(ctx, s.userID, attachmentID)
	})
	if err != nil {
		return s.fail("delete attachment", err)
	}
	if hasAttachment(s.base, attachmentID) {
		// nothing was cached to patch; show the server's list
		if err := s.refresh(ctx); err != nil {
			s.log.Warn("reload after attachment delete", editcache.Fields{"user": s.userID, "err": err})
			return nil
		}
		s.publishDetail(ctx)
	}
	return nil
}

func hasAttachment(u admin.User, id string) bool {
	return slices.ContainsFunc(u.Attachments, func(a admin.Attachment) bool { return a.ID == id })
}

// SetAvatar uploads file and tells every subscriber about the new URL.
func (s *Session) SetAvatar(ctx context.Context, file admin.Upload) error {
	if !s.open {
		return ErrNotOpen
	}
	var noBody bool
	err := s.users.Confirmed(ctx, s.userID, func(ctx context.Context) (editcache.Patch[admin.User], error) {
		resp, err := s.api.SetAvatar(ctx, s.userID, file)
		if err != nil {
			return nil, err
		}
		_, noBody = resp.(admin.NoBody)
		return admin.PatchOf(resp), nil
	})
	if err != nil {
		return s.fail("set avatar", err)
	}
	if noBody {
		_ = s.stores.Users.Invalidate(ctx, s.userID)
	}
	if err := s.refresh(ctx); err != nil {
		return s.fail("reload user", err)
	}
	if s.bus != nil {
		s.bus.Avatar.Publish(ctx, events.AvatarChanged{UserID: s.userID, AvatarURL: s.base.AvatarURL})
	}
	s.publishDetail(ctx)
	return nil
}

// SetPin changes the PIN flags. Conflicts (e.g. the last credential while the
// system lock is active) are returned as *admin.APIError and leave the cache
// untouched.
func (s *Session) SetPin(ctx context.Context, change admin.PinChange) error {
	if !s.open {
		return ErrNotOpen
	}
	var state admin.PinState
	err := s.users.Confirmed(ctx, s.userID, func(ctx context.Context) (editcache.Patch[admin.User], error) {
		st, err := s.api.SetPin(ctx, s.userID, change)
		if err != nil {
			return nil, err
		}
		state = st
		return admin.WithPin(st), nil
	})
	if err != nil {
		return s.fail("set pin", err)
	}
	s.base.HasCredential, s.base.CredentialEnabled = state.HasCredential, state.CredentialEnabled
	if s.bus != nil {
		s.bus.Pin.Publish(ctx, events.PinStateChanged{UserID: s.userID, State: state})
	}
	return nil
}

func (s *Session) publishDetail(ctx context.Context) {
	if s.bus != nil {
		s.bus.Detail.Publish(ctx, events.DetailPatched{UserID: s.userID, User: s.base})
	}
}
