package tasks

import (
	"slices"

	"github.com/desertthunder/scrobblex/internal/models"
)

// Decision is the net want-to-read state for one (series, user) key.
//
// Winner is delivered; every contributor, the winner included, takes the winner's outcome.
type Decision struct {
	Winner       *models.ScrobbleEvent
	Contributors []*models.ScrobbleEvent
}

type decisionKey struct {
	seriesID string
	userID   string
}

// Compact collapses add and remove events to one [Decision] per (series, user).
//
// The event with the latest UpdatedAt wins. Ties go to the first event seen, and adds are seen before removes.
// Decisions are ordered by winner sequence.
func Compact(adds, removes []*models.ScrobbleEvent) []Decision {
	index := make(map[decisionKey]int)
	var decisions []Decision

	for _, evt := range slices.Concat(adds, removes) {
		key := decisionKey{seriesID: evt.SeriesID(), userID: evt.UserID()}

		i, seen := index[key]
		if !seen {
			index[key] = len(decisions)
			decisions = append(decisions, Decision{Winner: evt, Contributors: []*models.ScrobbleEvent{evt}})
			continue
		}

		d := &decisions[i]
		d.Contributors = append(d.Contributors, evt)
		if evt.UpdatedAt().After(d.Winner.UpdatedAt()) {
			d.Winner = evt
		}
	}

	slices.SortStableFunc(decisions, func(a, b Decision) int {
		return a.Winner.Sequence() - b.Winner.Sequence()
	})

	return decisions
}
