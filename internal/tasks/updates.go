package tasks

import (
	"fmt"

	"github.com/desertthunder/scrobblex/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or server layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	Assemble Phase = iota
	Prefetch
	DeliverReads
	DeliverRatings
	DeliverReviews
	DeliverWantToRead
	Commit
	Cleanup
	Backfill
)

func (p Phase) String() string {
	switch p {
	case Assemble:
		return "assemble"
	case Prefetch:
		return "prefetch"
	case DeliverReads:
		return "deliver_reads"
	case DeliverRatings:
		return "deliver_ratings"
	case DeliverReviews:
		return "deliver_reviews"
	case DeliverWantToRead:
		return "deliver_want_to_read"
	case Commit:
		return "commit"
	case Cleanup:
		return "cleanup"
	case Backfill:
		return "backfill"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func assembleUpdate(total int, quarantined int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Assemble,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Assembled %d pending events (%d filtered)", total, quarantined),
	}
}

func prefetchUpdate(users int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prefetch,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Resolving quota for %d users...", users),
	}
}

func deliverUpdate(phase Phase, step, total int, evt *models.ScrobbleEvent) ProgressUpdate {
	if evt == nil {
		return ProgressUpdate{
			Phase:   phase,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("Delivering %d events...", total),
		}
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s series %s", step, total, evt.Type(), evt.SeriesID()),
		Data:    evt,
	}
}

func commitUpdate(staged int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Commit,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Committing %d writes", staged),
	}
}

func cleanupUpdate(report *CleanupReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Cleanup,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Cleanup removed %d processed, %d stale events", report.Processed, report.Stale),
		Data:    report,
	}
}

func backfillUpdate(step, total int, user *models.User) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Backfill,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Backfilling %s", step, total, user.Name()),
	}
}

// phaseFor maps an event group to its delivery phase.
func phaseFor(t models.EventType) Phase {
	switch t {
	case models.ChapterRead:
		return DeliverReads
	case models.ScoreUpdated:
		return DeliverRatings
	case models.ReviewUpdated:
		return DeliverReviews
	default:
		return DeliverWantToRead
	}
}
