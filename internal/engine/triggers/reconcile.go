package triggers

import (
	"sort"

	"movebot/internal/gateway"
)

// Reconcile computes which pending notification identifiers to cancel so
// the gateway converges on the desired trigger set. A pending request
// survives iff its identifier is desired or protected; everything else is
// a leftover from a deleted/deactivated trigger and gets canceled. The
// result is sorted so reconciliation runs are deterministic.
func Reconcile(desired map[string]struct{}, pending []gateway.Pending, protected map[string]struct{}) []string {
	var toCancel []string
	seen := map[string]struct{}{}
	for _, p := range pending {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if _, ok := desired[p.ID]; ok {
			continue
		}
		if _, ok := protected[p.ID]; ok {
			continue
		}
		toCancel = append(toCancel, p.ID)
	}
	sort.Strings(toCancel)
	return toCancel
}
