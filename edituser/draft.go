package edituser

import (
	"slices"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/unkn0wn-root/editcache/admin"
)

// Draft is the editable state of the form. The UI mutates it directly.
type Draft struct {
	DisplayName string
	Email       string
	Phone       string
	Status      admin.Status
	RoleIDs     []string

	// OverridesEnabled is the "special permissions" toggle. Overrides are
	// kept while it is off so turning it back on restores them.
	OverridesEnabled bool
	Overrides        []admin.Override

	// Pending are files picked but not uploaded yet.
	Pending []admin.Upload
}

func draftFrom(u admin.User) *Draft {
	return &Draft{
		DisplayName:      u.DisplayName,
		Email:            u.Email,
		Phone:            u.Phone,
		Status:           u.Status,
		RoleIDs:          slices.Clone(u.RoleIDs),
		OverridesEnabled: len(u.Overrides) > 0,
		Overrides:        slices.Clone(u.Overrides),
	}
}

// AddPending queues f unless a file with the same identity is already queued.
func (d *Draft) AddPending(f admin.Upload) bool {
	key := IdentityKey(f)
	for _, p := range d.Pending {
		if IdentityKey(p) == key {
			return false
		}
	}
	d.Pending = append(d.Pending, f)
	return true
}

// RemovePending drops the queued file with key.
func (d *Draft) RemovePending(key string) {
	d.Pending = slices.DeleteFunc(d.Pending, func(p admin.Upload) bool { return IdentityKey(p) == key })
}

// SetOverride adds or replaces the override for o.PermissionID.
func (d *Draft) SetOverride(o admin.Override) {
	for i := range d.Overrides {
		if d.Overrides[i].PermissionID == o.PermissionID {
			d.Overrides[i].Effect = o.Effect
			return
		}
	}
	d.Overrides = append(d.Overrides, o)
}

func (d *Draft) ClearOverride(permissionID string) {
	d.Overrides = slices.DeleteFunc(d.Overrides, func(o admin.Override) bool { return o.PermissionID == permissionID })
}

// IdentityKey identifies a picked file by name, size and modification time.
// It survives re-renders and changes when a different file with the same name
// is picked.
func IdentityKey(f admin.Upload) string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(f.Size, 10))
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(f.ModTime.UnixNano(), 10))
	return strconv.FormatUint(xxh3.HashString(b.String()), 16)
}

// snapshot is the order-normalized shape compared by the dirty guard.
type snapshot struct {
	DisplayName      string           `json:"displayName"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone"`
	Status           admin.Status     `json:"status"`
	RoleIDs          []string         `json:"roleIds"`
	OverridesEnabled bool             `json:"overridesEnabled"`
	Overrides        []admin.Override `json:"overrides"`
	Pending          []string         `json:"pending"`
}

func (d *Draft) canonical() snapshot {
	s := snapshot{
		DisplayName:      d.DisplayName,
		Email:            d.Email,
		Phone:            d.Phone,
		Status:           d.Status,
		RoleIDs:          sortedCopy(d.RoleIDs),
		OverridesEnabled: d.OverridesEnabled,
		Overrides:        []admin.Override{},
		Pending:          make([]string, 0, len(d.Pending)),
	}
	if d.OverridesEnabled {
		s.Overrides = slices.Clone(d.Overrides)
		slices.SortStableFunc(s.Overrides, func(a, b admin.Override) int {
			return strings.Compare(a.PermissionID, b.PermissionID)
		})
	}
	for _, p := range d.Pending {
		s.Pending = append(s.Pending, IdentityKey(p))
	}
	slices.Sort(s.Pending)
	return s
}

func sortedCopy(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	slices.Sort(out)
	return out
}
