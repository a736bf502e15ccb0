// Package overrides reconciles a locally edited permission-override set
// with the last known server state.
package overrides

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/unkn0wn-root/editcache/admin"
)

// Plan is the minimal set of calls that turns the previous set into the
// target. Both lists are sorted by permission id.
type Plan struct {
	Remove []string
	Upsert []admin.Override
}

func (p Plan) Empty() bool { return len(p.Remove) == 0 && len(p.Upsert) == 0 }

// Diff computes the plan from prev to next. When enabled is false the target
// is empty. Duplicate permission ids in next resolve last-wins.
func Diff(prev []admin.Override, enabled bool, next []admin.Override) Plan {
	before := make(map[string]admin.Effect, len(prev))
	for _, o := range prev {
		before[o.PermissionID] = o.Effect
	}
	target := make(map[string]admin.Effect, len(next))
	if enabled {
		for _, o := range next {
			target[o.PermissionID] = o.Effect
		}
	}

	var plan Plan
	for id := range before {
		if _, ok := target[id]; !ok {
			plan.Remove = append(plan.Remove, id)
		}
	}
	for id, eff := range target {
		if old, ok := before[id]; !ok || old != eff {
			plan.Upsert = append(plan.Upsert, admin.Override{PermissionID: id, Effect: eff})
		}
	}
	sort.Strings(plan.Remove)
	sort.Slice(plan.Upsert, func(i, j int) bool {
		return plan.Upsert[i].PermissionID < plan.Upsert[j].PermissionID
	})
	return plan
}

// Result is the set the server holds once plan has been applied to prev,
// sorted by permission id. It is never nil.
func Result(prev []admin.Override, plan Plan) []admin.Override {
	m := make(map[string]admin.Effect, len(prev)+len(plan.Upsert))
	for _, o := range prev {
		m[o.PermissionID] = o.Effect
	}
	for _, id := range plan.Remove {
		delete(m, id)
	}
	for _, o := range plan.Upsert {
		m[o.PermissionID] = o.Effect
	}
	out := make([]admin.Override, 0, len(m))
	for id, eff := range m {
		out = append(out, admin.Override{PermissionID: id, Effect: eff})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionID < out[j].PermissionID })
	return out
}

// ApplyError lists the calls of a plan that failed. The rest went through.
type ApplyError struct {
	UserID  string
	Removed []string // permission ids whose delete failed
	Upserts []string // permission ids whose upsert failed
	Err     error    // joined causes
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply overrides for %q: %d remove(s), %d upsert(s) failed: %v",
		e.UserID, len(e.Removed), len(e.Upserts), e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Apply issues every removal and upsert in plan as an independent call. Each
// call is attempted; failures are collected in an *ApplyError.
func Apply(ctx context.Context, api admin.API, userID string, plan Plan) error {
	var (
		ae   ApplyError
		errs []error
	)
	for _, id := range plan.Remove {
		if err := api.DeleteOverride(ctx, userID, id); err != nil {
			ae.Removed = append(ae.Removed, id)
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	for _, o := range plan.Upsert {
		if err := api.UpsertOverride(ctx, userID, o); err != nil {
			ae.Upserts = append(ae.Upserts, o.PermissionID)
			errs = append(errs, fmt.Errorf("upsert %s: %w", o.PermissionID, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	ae.UserID = userID
	ae.Err = errors.Join(errs...)
	return &ae
}

// Applied drops the failed calls from plan, leaving what the server accepted.
func (e *ApplyError) Applied(plan Plan) Plan {
	failed := make(map[string]bool, len(e.Removed)+len(e.Upserts))
	for _, id := range e.Removed {
		failed["-"+id] = true
	}
	for _, id := range e.Upserts {
		failed["+"+id] = true
	}
	var out Plan
	for _, id := range plan.Remove {
		if !failed["-"+id] {
			out.Remove = append(out.Remove, id)
		}
	}
	for _, o := range plan.Upsert {
		if !failed["+"+o.PermissionID] {
			out.Upsert = append(out.Upsert, o)
		}
	}
	return out
}
