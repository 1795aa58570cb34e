// Package reconcile merges persisted message history with live-pushed
// messages on behalf of clients.
//
// The merge is a pure function so the reconciliation contract can be tested
// independently of any transport or UI: dedup by message id, persisted data
// wins on conflict, display order is (created_at, id).
package reconcile

import (
	"sort"

	"github.com/animeshkarmakar7/CommuNet/internal/realtime"
)

// Merge combines the authoritative persisted list with a stream of
// live-pushed messages.
//
// Rules:
//   - Messages are identified by ID; each ID appears at most once in the output.
//   - On conflict the persisted record takes precedence (it carries the
//     authoritative delivery state).
//   - Output is sorted by (CreatedAt, ID) ascending, which tolerates
//     out-of-order arrival across concurrent senders.
func Merge(persisted, live []realtime.Message) []realtime.Message {
	out := make([]realtime.Message, 0, len(persisted)+len(live))
	seen := make(map[string]struct{}, len(persisted)+len(live))

	for _, m := range persisted {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	for _, m := range live {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out
}
