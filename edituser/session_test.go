package edituser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/unkn0wn-root/editcache"
	"github.com/unkn0wn-root/editcache/admin"
	"github.com/unkn0wn-root/editcache/admin/admintest"
	"github.com/unkn0wn-root/editcache/admincache"
	"github.com/unkn0wn-root/editcache/config"
	"github.com/unkn0wn-root/editcache/events"
	"github.com/unkn0wn-root/editcache/optimistic"
	"github.com/unkn0wn-root/editcache/restclient"
)

type fixture struct {
	api    *admintest.Fake
	stores *admincache.Stores
	bus    *events.Bus
	s      *Session
}

func seed() *admintest.Fake {
	api := admintest.New()
	api.Roles = []admin.Role{
		{ID: "editor", Name: "Editor", PermissionIDs: []string{"p1"}},
		{ID: "owner", Name: "Owner", Owner: true},
	}
	api.Permissions = []admin.Permission{{ID: "p1", Key: "users.read"}, {ID: "p2", Key: "users.write"}, {ID: "p3", Key: "audit.read"}}
	api.SetUser(admin.User{
		ID:          "u1",
		DisplayName: "Ada",
		Email:       "ada@example.com",
		Status:      admin.StatusActive,
		RoleIDs:     []string{"editor"},
		Overrides:   []admin.Override{{PermissionID: "p2", Effect: admin.Allow}},
		Attachments: []admin.Attachment{{ID: "att-a", Name: "contract.pdf", Size: 10}},
	})
	return api
}

func newStores(t *testing.T, api admin.API) *admincache.Stores {
	t.Helper()
	cfg := config.Config{
		DetailTTL:      10 * time.Second,
		CatalogTTL:     20 * time.Second,
		Provider:       config.ProviderMemory,
		Codec:          "json",
		GenStore:       config.GenStoreLocal,
		MaxDecodeBytes: 1 << 20,
		LogBackend:     config.LogSlog,
		LogLevel:       "error",
	}
	stores, err := admincache.New(context.Background(), cfg, api, admincache.WithLogger(editcache.NopLogger{}))
	if err != nil {
		t.Fatalf("admincache.New: %v", err)
	}
	t.Cleanup(func() { _ = stores.Close(context.Background()) })
	return stores
}

func newSession(t *testing.T, stores *admincache.Stores, api admin.API, opts Options) *Session {
	t.Helper()
	if opts.Bus == nil {
		opts.Bus = events.NewBus(nil)
	}
	if opts.SettlePasses == 0 {
		opts.SettlePasses = -1
	}
	s := New(stores, api, opts)
	t.Cleanup(s.Close)
	return s
}

func newFixture(t *testing.T, api *admintest.Fake, opts Options) *fixture {
	t.Helper()
	stores := newStores(t, api)
	if opts.Bus == nil {
		opts.Bus = events.NewBus(nil)
	}
	return &fixture{api: api, stores: stores, bus: opts.Bus, s: newSession(t, stores, api, opts)}
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	if err := f.s.Open(context.Background(), "u1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

// callsSince returns mutation calls recorded after the first n calls.
func (f *fixture) callsSince(n int) []string {
	var out []string
	for _, c := range f.api.Calls()[n:] {
		if !strings.HasPrefix(c, "Fetch") {
			out = append(out, c)
		}
	}
	return out
}

func cached(t *testing.T, f *fixture) admin.User {
	t.Helper()
	u, ok, err := f.stores.Users.Peek(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("Peek: ok=%v err=%v", ok, err)
	}
	return u
}

func TestOpenLoadsEverythingOnce(t *testing.T) {
	f := newFixture(t, seed(), Options{})
	f.open(t)

	if len(f.s.Roles()) != 2 || len(f.s.Permissions()) != 3 || f.s.User().DisplayName != "Ada" {
		t.Fatalf("open state: roles=%v perms=%v user=%+v", f.s.Roles(), f.s.Permissions(), f.s.User())
	}
	d := f.s.Draft()
	if !d.OverridesEnabled || len(d.Overrides) != 1 {
		t.Fatalf("draft overrides: %+v", d)
	}

	f.s.Close()
	f.open(t)
	for _, m := range []string{"FetchUser", "FetchRoles", "FetchPermissions"} {
		if n := f.api.Count(m); n != 1 {
			t.Fatalf("%s called %d times, want 1 (reopen served from cache)", m, n)
		}
	}
}

func TestOpenFails(t *testing.T) {
	api := seed()
	api.SetFail("FetchRoles", errors.New("boom"))
	f := newFixture(t, api, Options{})

	err := f.s.Open(context.Background(), "u1")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Open err=%v", err)
	}
	if f.s.IsOpen() {
		t.Fatal("session open after failed load")
	}
	if err := f.s.Save(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Save on closed session: %v", err)
	}
}

func TestDirtyArmsAfterSettlePasses(t *testing.T) {
	f := newFixture(t, seed(), Options{SettlePasses: 2})
	f.open(t)
	d := f.s.Draft()

	// form initialization writes before the layout settles
	d.Phone = "+1 555"
	if f.s.IsDirty() {
		t.Fatal("dirty before baseline")
	}
	for i := 0; i < 2; i++ {
		if err := f.s.Settle(); err != nil {
			t.Fatalf("Settle: %v", err)
		}
	}
	if f.s.IsDirty() {
		t.Fatal("settled draft reported dirty")
	}

	d.RoleIDs = append(d.RoleIDs, "owner")
	if !f.s.IsDirty() {
		t.Fatal("role change not detected")
	}
	d.RoleIDs = []string{"editor"}
	if f.s.IsDirty() {
		t.Fatal("reverted roles still dirty")
	}

	t.Run("order of roles and overrides is ignored", func(t *testing.T) {
		d.RoleIDs = []string{"editor"}
		d.SetOverride(admin.Override{PermissionID: "p1", Effect: admin.Deny})
		if !f.s.IsDirty() {
			t.Fatal("new override not detected")
		}
		d.ClearOverride("p1")
		if f.s.IsDirty() {
			t.Fatal("cleared override still dirty")
		}
	})

	t.Run("disabled overrides compare as empty", func(t *testing.T) {
		d.OverridesEnabled = false
		if !f.s.IsDirty() {
			t.Fatal("toggle off not detected")
		}
		d.SetOverride(admin.Override{PermissionID: "p3", Effect: admin.Allow})
		d.OverridesEnabled = true
		d.ClearOverride("p3")
		if f.s.IsDirty() {
			t.Fatal("restored overrides still dirty")
		}
	})

	t.Run("pending files", func(t *testing.T) {
		up := admin.Upload{Name: "id.png", Size: 3, ModTime: time.Unix(100, 0)}
		if !d.AddPending(up) || d.AddPending(up) {
			t.Fatal("AddPending should dedupe by identity")
		}
		if !f.s.IsDirty() {
			t.Fatal("pending file not detected")
		}
		d.RemovePending(IdentityKey(up))
		if f.s.IsDirty() {
			t.Fatal("removed pending file still dirty")
		}
	})
}

func TestSaveSendsOnlyChangedParts(t *testing.T) {
	f := newFixture(t, seed(), Options{})
	f.open(t)
	d := f.s.Draft()
	d.SetOverride(admin.Override{PermissionID: "p2", Effect: admin.Deny})
	d.SetOverride(admin.Override{PermissionID: "p3", Effect: admin.Allow})
	if !f.s.IsDirty() {
		t.Fatal("expected dirty")
	}

	n := len(f.api.Calls())
	if err := f.s.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := []string{"UpsertOverride:p2", "UpsertOverride:p3"}
	if got := f.callsSince(n); !slices.Equal(got, want) {
		t.Fatalf("calls=%v want %v", got, want)
	}
	if f.s.IsDirty() {
		t.Fatal("dirty after save")
	}
	u := cached(t, f)
	if len(u.Overrides) != 2 || u.Overrides[0] != (admin.Override{PermissionID: "p2", Effect: admin.Deny}) {
		t.Fatalf("cached overrides: %+v", u.Overrides)
	}
	if msg, ok := f.s.Flash().Current(); !ok || msg.Kind != FlashInfo {
		t.Fatalf("flash=%+v ok=%v", msg, ok)
	}

	// nothing changed: no mutation at all
	n = len(f.api.Calls())
	if err := f.s.Save(context.Background()); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if got := f.callsSince(n); len(got) != 0 {
		t.Fatalf("unchanged save sent %v", got)
	}
}

func TestSaveProfileStatusAndRoles(t *testing.T) {
	api := seed()
	api.Partial = true
	f := newFixture(t, api, Options{})
	f.open(t)
	d := f.s.Draft()
	d.Email = "ada@lovelace.dev"
	d.Status = admin.StatusDisabled
	d.RoleIDs = []string{"editor", "viewer"}

	var got []events.DetailPatched
	f.bus.Detail.Subscribe(func(_ context.Context, e events.DetailPatched) error {
		got = append(got, e)
		return nil
	})

	n := len(f.api.Calls())
	if err := f.s.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := []string{"UpdateProfile", "SetStatus:disabled", "AssignRoles"}
	if calls := f.callsSince(n); !slices.Equal(calls, want) {
		t.Fatalf("calls=%v want %v", calls, want)
	}
	u := cached(t, f)
	if u.Email != "ada@lovelace.dev" || u.Status != admin.StatusDisabled || !u.HasRole("viewer") {
		t.Fatalf("cache not patched from partial responses: %+v", u)
	}
	if api.Count("FetchUser") != 1 {
		t.Fatalf("save refetched the user %d times", api.Count("FetchUser")-1)
	}
	if len(got) != 1 || got[0].User.Email != "ada@lovelace.dev" {
		t.Fatalf("detail events: %+v", got)
	}
}

func TestSaveOwnerDropsOverridesFirst(t *testing.T) {
	f := newFixture(t, seed(), Options{})
	f.open(t)
	d := f.s.Draft()
	d.RoleIDs = []string{"editor", "owner"}
	if !f.s.OwnerSelected() {
		t.Fatal("owner role not detected")
	}

	n := len(f.api.Calls())
	if err := f.s.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := []string{"DeleteOverride:p2", "AssignRoles"}
	if got := f.callsSince(n); !slices.Equal(got, want) {
		t.Fatalf("calls=%v want %v", got, want)
	}
	if u := cached(t, f); len(u.Overrides) != 0 {
		t.Fatalf("owner keeps overrides: %+v", u.Overrides)
	}
	if d.OverridesEnabled || f.s.IsDirty() {
		t.Fatalf("draft after owner save: enabled=%v dirty=%v", d.OverridesEnabled, f.s.IsDirty())
	}
}

func TestSavePartialOverrideFailure(t *testing.T) {
	api := seed()
	conflict := &admin.APIError{Op: "upsert override", Status: 409, Code: admin.CodeConflict, Message: "permission retired"}
	api.SetFail("UpsertOverride:p3", conflict)
	f := newFixture(t, api, Options{})
	f.open(t)
	d := f.s.Draft()
	d.ClearOverride("p2")
	d.SetOverride(admin.Override{PermissionID: "p3", Effect: admin.Allow})

	err := f.s.Save(context.Background())
	if !admin.IsConflict(err) {
		t.Fatalf("Save err=%v, want conflict", err)
	}
	if u := cached(t, f); len(u.Overrides) != 0 {
		t.Fatalf("cache should hold only the applied removal: %+v", u.Overrides)
	}
	if !f.s.IsDirty() {
		t.Fatal("failed save must keep the draft dirty")
	}
	if msg, _ := f.s.Flash().Current(); msg.Kind != FlashError || msg.Text != "permission retired" {
		t.Fatalf("flash=%+v", msg)
	}
}

func TestSaveRetrySendsOnlyWhatFailed(t *testing.T) {
	api := seed()
	api.SetFail("UploadAttachments", errors.New("storage full"))
	f := newFixture(t, api, Options{})
	f.open(t)
	d := f.s.Draft()
	d.OverridesEnabled = false
	d.AddPending(admin.Upload{Name: "id.png", Size: 3, ModTime: time.Unix(100, 0), Body: strings.NewReader("png")})

	if err := f.s.Save(context.Background()); err == nil {
		t.Fatal("expected upload failure")
	}
	if got := f.s.User().Overrides; len(got) != 0 {
		t.Fatalf("session baseline still holds the removed override: %+v", got)
	}
	if !f.s.IsDirty() || len(d.Pending) != 1 {
		t.Fatalf("dirty=%v pending=%d", f.s.IsDirty(), len(d.Pending))
	}

	api.SetFail("UploadAttachments", nil)
	n := len(api.Calls())
	if err := f.s.Save(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got, want := f.callsSince(n), []string{"UploadAttachments"}; !slices.Equal(got, want) {
		t.Fatalf("retry calls=%v want %v", got, want)
	}
	if api.Count("DeleteOverride") != 1 {
		t.Fatalf("DeleteOverride=%d want 1", api.Count("DeleteOverride"))
	}
	if f.s.IsDirty() {
		t.Fatal("dirty after successful retry")
	}
}

func TestSaveKeepsCollectionsWhenServerEchoesID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":          r.PathValue("id"),
			"displayName": "Ada",
			"status":      "active",
			"roleIds":     []string{"editor"},
			"overrides":   []map[string]string{{"permissionId": "p2", "effect": "ALLOW"}},
			"attachments": []map[string]any{{"id": "att-a", "name": "contract.pdf"}, {"id": "att-b", "name": "id.png"}},
		})
	})
	mux.HandleFunc("GET /roles", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []admin.Role{{ID: "editor", Name: "Editor"}})
	})
	mux.HandleFunc("GET /permissions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []admin.Permission{{ID: "p2", Key: "users.write"}})
	})
	mux.HandleFunc("PATCH /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		var in admin.ProfileChange
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, map[string]any{"id": r.PathValue("id"), "displayName": in.DisplayName})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	api, err := restclient.New(restclient.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	stores := newStores(t, api)
	s := newSession(t, stores, api, Options{})
	if err := s.Open(context.Background(), "u1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Draft().DisplayName = "Ada L."
	if err := s.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	u, ok, err := stores.Users.Peek(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("Peek: ok=%v err=%v", ok, err)
	}
	if u.DisplayName != "Ada L." {
		t.Fatalf("name=%q", u.DisplayName)
	}
	if len(u.Attachments) != 2 || len(u.RoleIDs) != 1 || len(u.Overrides) != 1 {
		t.Fatalf("collections lost after an id-only echo: %+v", u)
	}
	if s.IsDirty() {
		t.Fatal("dirty after save")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestSaveUploadsPending(t *testing.T) {
	for _, noBody := range []bool{false, true} {
		name := "full record"
		if noBody {
			name = "no body refetches"
		}
		t.Run(name, func(t *testing.T) {
			api := seed()
			api.UploadNoBody = noBody
			f := newFixture(t, api, Options{})
			f.open(t)
			d := f.s.Draft()
			d.AddPending(admin.Upload{Name: "id.png", Size: 3, ModTime: time.Unix(100, 0), Body: strings.NewReader("png")})

			if err := f.s.Save(context.Background()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if len(d.Pending) != 0 || f.s.IsDirty() {
				t.Fatalf("pending=%v dirty=%v", d.Pending, f.s.IsDirty())
			}
			if got := len(f.s.User().Attachments); got != 2 {
				t.Fatalf("attachments=%d want 2", got)
			}
			wantFetches := 1
			if noBody {
				wantFetches = 2
			}
			if n := api.Count("FetchUser"); n != wantFetches {
				t.Fatalf("FetchUser=%d want %d", n, wantFetches)
			}
		})
	}
}

func TestSaveRejectsInvalidDraft(t *testing.T) {
	f := newFixture(t, seed(), Options{})
	f.open(t)
	f.s.Draft().Status = "retired"
	n := len(f.api.Calls())
	if err := f.s.Save(context.Background()); !errors.Is(err, ErrInvalidEdit) {
		t.Fatalf("Save err=%v", err)
	}
	if got := f.callsSince(n); len(got) != 0 {
		t.Fatalf("invalid draft sent %v", got)
	}
}

func TestClosePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("clean closes", func(t *testing.T) {
		f := newFixture(t, seed(), Options{})
		f.open(t)
		if got := f.s.AttemptClose(); got != CloseNow || f.s.IsOpen() {
			t.Fatalf("decision=%v open=%v", got, f.s.IsOpen())
		}
	})

	t.Run("dirty asks", func(t *testing.T) {
		f := newFixture(t, seed(), Options{})
		f.open(t)
		f.s.Draft().DisplayName = "Ada L."
		if got := f.s.AttemptClose(); got != ConfirmDiscard || !f.s.IsOpen() {
			t.Fatalf("decision=%v open=%v", got, f.s.IsOpen())
		}
		f.s.Discard()
		if f.s.IsOpen() || f.s.Draft() != nil || f.s.IsDirty() {
			t.Fatal("discard left state behind")
		}
		if f.api.Count("UpdateProfile") != 0 {
			t.Fatal("discard saved")
		}
	})

	t.Run("save and close", func(t *testing.T) {
		f := newFixture(t, seed(), Options{})
		f.open(t)
		f.s.Draft().DisplayName = "Ada L."
		if err := f.s.SaveAndClose(ctx); err != nil {
			t.Fatalf("SaveAndClose: %v", err)
		}
		if f.s.IsOpen() || f.api.User("u1").DisplayName != "Ada L." {
			t.Fatal("not saved and closed")
		}
	})

	t.Run("failed save stays open", func(t *testing.T) {
		api := seed()
		api.SetFail("UpdateProfile", errors.New("offline"))
		f := newFixture(t, api, Options{})
		f.open(t)
		f.s.Draft().DisplayName = "Ada L."
		if err := f.s.SaveAndClose(ctx); err == nil {
			t.Fatal("expected error")
		}
		if !f.s.IsOpen() || !f.s.IsDirty() {
			t.Fatal("failed save must keep the session open and dirty")
		}
	})
}

func TestDeleteAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newFixture(t, seed(), Options{})
		f.open(t)
		if err := f.s.DeleteAttachment(ctx, "att-a"); err != nil {
			t.Fatalf("DeleteAttachment: %v", err)
		}
		if u := cached(t, f); len(u.Attachments) != 0 {
			t.Fatalf("attachments=%+v", u.Attachments)
		}
		if f.api.Count("FetchUser") != 1 {
			t.Fatal("successful delete should not refetch")
		}
	})

	t.Run("rollback", func(t *testing.T) {
		api := seed()
		api.SetFail("DeleteAttachment:att-a", errors.New("locked"))
		f := newFixture(t, api, Options{})
		f.open(t)

		err := f.s.DeleteAttachment(ctx, "att-a")
		var rb *optimistic.RollbackError
		if !errors.As(err, &rb) {
			t.Fatalf("err=%v, want RollbackError", err)
		}
		if u := cached(t, f); len(u.Attachments) != 1 {
			t.Fatalf("rollback did not restore attachment: %+v", u.Attachments)
		}
		if len(f.s.User().Attachments) != 1 {
			t.Fatal("session baseline not restored")
		}
		if api.Count("FetchUser") != 2 {
			t.Fatalf("FetchUser=%d want 2", api.Count("FetchUser"))
		}
	})
}

// blockingDelete holds DeleteAttachment until release is closed.
type blockingDelete struct {
	*admintest.Fake
	started chan struct{}
	release chan struct{}
}

func (b blockingDelete) DeleteAttachment(ctx context.Context, userID, attachmentID string) error {
	close(b.started)
	<-b.release
	return b.Fake.DeleteAttachment(ctx, userID, attachmentID)
}

func TestDeleteAttachmentShowsGuessWhileInFlight(t *testing.T) {
	for _, fail := range []bool{false, true} {
		name := "accepted"
		if fail {
			name = "refused"
		}
		t.Run(name, func(t *testing.T) {
			fake := seed()
			if fail {
				fake.SetFail("DeleteAttachment:att-a", errors.New("locked"))
			}
			stores := newStores(t, fake)
			bus := events.NewBus(nil)
			api := blockingDelete{Fake: fake, started: make(chan struct{}), release: make(chan struct{})}
			s := newSession(t, stores, api, Options{Bus: bus})
			if err := s.Open(context.Background(), "u1"); err != nil {
				t.Fatalf("Open: %v", err)
			}
			var details []int
			bus.Detail.Subscribe(func(_ context.Context, e events.DetailPatched) error {
				details = append(details, len(e.User.Attachments))
				return nil
			})

			done := make(chan error, 1)
			go func() { done <- s.DeleteAttachment(context.Background(), "att-a") }()

			select {
			case <-api.started:
			case <-time.After(2 * time.Second):
				t.Fatal("delete never reached the server")
			}
			if n := len(s.User().Attachments); n != 0 {
				t.Fatalf("modal still shows %d attachments while the delete is in flight", n)
			}
			if !slices.Equal(details, []int{0}) {
				t.Fatalf("detail events before the call returned: %v", details)
			}
			close(api.release)

			err := <-done
			if fail {
				if err == nil {
					t.Fatal("expected rollback error")
				}
				if n := len(s.User().Attachments); n != 1 {
					t.Fatalf("rollback not shown: %d attachments", n)
				}
				if !slices.Equal(details, []int{0, 1}) {
					t.Fatalf("detail events=%v want [0 1]", details)
				}
				return
			}
			if err != nil {
				t.Fatalf("DeleteAttachment: %v", err)
			}
			if !slices.Equal(details, []int{0}) {
				t.Fatalf("detail events=%v want [0]", details)
			}
		})
	}
}

func TestAvatarAndPinPublish(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, seed(), Options{})
	f.open(t)

	var avatars []events.AvatarChanged
	var pins []events.PinStateChanged
	f.bus.Avatar.Subscribe(func(_ context.Context, e events.AvatarChanged) error {
		avatars = append(avatars, e)
		return nil
	})
	f.bus.Pin.Subscribe(func(_ context.Context, e events.PinStateChanged) error {
		pins = append(pins, e)
		return nil
	})

	if err := f.s.SetAvatar(ctx, admin.Upload{Name: "me.png", Body: strings.NewReader("x")}); err != nil {
		t.Fatalf("SetAvatar: %v", err)
	}
	if len(avatars) != 1 || avatars[0].AvatarURL != "/avatars/u1/me.png" {
		t.Fatalf("avatar events: %+v", avatars)
	}
	if u := cached(t, f); u.AvatarURL != "/avatars/u1/me.png" {
		t.Fatalf("cached avatar=%q", u.AvatarURL)
	}

	if err := f.s.SetPin(ctx, admin.PinChange{PIN: "1234"}); err != nil {
		t.Fatalf("SetPin: %v", err)
	}
	want := admin.PinState{HasCredential: true, CredentialEnabled: true}
	if len(pins) != 1 || pins[0].State != want {
		t.Fatalf("pin events: %+v", pins)
	}
	if u := cached(t, f); u.Pin() != want {
		t.Fatalf("cached pin=%+v", u.Pin())
	}
	if f.s.IsDirty() {
		t.Fatal("immediate actions must not dirty the form")
	}

	t.Run("conflict", func(t *testing.T) {
		f.api.SetFail("SetPin", &admin.APIError{Op: "set pin", Status: 409, Code: admin.CodeConflict, Message: "last credential while locked"})
		off := false
		err := f.s.SetPin(ctx, admin.PinChange{Enabled: &off})
		if !admin.IsConflict(err) {
			t.Fatalf("err=%v", err)
		}
		if len(pins) != 1 {
			t.Fatal("conflict published an event")
		}
		if u := cached(t, f); u.Pin() != want {
			t.Fatalf("cache changed on conflict: %+v", u.Pin())
		}
		if msg, _ := f.s.Flash().Current(); msg.Text != "last credential while locked" {
			t.Fatalf("flash=%+v", msg)
		}
	})
}

func TestFlashExpires(t *testing.T) {
	fl := newFlash(20 * time.Millisecond)
	fl.Show(FlashInfo, "first")
	fl.Show(FlashError, "second")
	if msg, ok := fl.Current(); !ok || msg.Text != "second" {
		t.Fatalf("current=%+v ok=%v", msg, ok)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := fl.Current(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("flash never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	fl.Show(FlashInfo, "third")
	fl.Cancel()
	if _, ok := fl.Current(); ok {
		t.Fatal("Cancel left a message")
	}
}

func TestIdentityKey(t *testing.T) {
	a := admin.Upload{Name: "scan.pdf", Size: 10, ModTime: time.Unix(1, 0)}
	b := a
	b.ModTime = time.Unix(2, 0)
	if IdentityKey(a) != IdentityKey(a) {
		t.Fatal("key not stable")
	}
	if IdentityKey(a) == IdentityKey(b) {
		t.Fatal("same name with different mtime must differ")
	}
}
