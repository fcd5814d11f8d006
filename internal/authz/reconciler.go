package authz

import "context"

// Diff is the result of reconciling a desired assignment set against the
// current one.
type Diff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Empty reports whether the reconciliation is a no-op.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffSets computes desired minus current (Added) and current minus desired
// (Removed) on ids. Added preserves desired order, Removed preserves current
// order; duplicates in either input are collapsed.
func DiffSets(current, desired []string) Diff {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	desiredSet := make(map[string]struct{}, len(desired))

	var diff Diff
	for _, id := range desired {
		if _, dup := desiredSet[id]; dup {
			continue
		}
		desiredSet[id] = struct{}{}
		if _, ok := currentSet[id]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}
	seen := make(map[string]struct{}, len(current))
	for _, id := range current {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := desiredSet[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	return diff
}

// reconcile moves a target from its current set to the desired one. The
// caller always supplies the complete desired set; the current set is read
// from the store at call time so no client-held snapshot is authoritative.
// An empty diff returns without invoking apply, so a no-op reconciliation
// triggers no writes and no notifications.
func reconcile(ctx context.Context, current func(context.Context) ([]string, error), desired []string, apply func(context.Context, Diff) error) (Diff, error) {
	existing, err := current(ctx)
	if err != nil {
		return Diff{}, err
	}
	diff := DiffSets(existing, desired)
	if diff.Empty() {
		return diff, nil
	}
	if err := apply(ctx, diff); err != nil {
		return Diff{}, err
	}
	return diff, nil
}
