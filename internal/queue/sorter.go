package queue

import (
	"sort"

	"clinic-queue/internal/models"
)

// SortByPriority orders entries by priority rank, then arrival (FIFO
// within a rank). The id breaks exact ties so the order is total.
// The slice is sorted in place and returned.
func SortByPriority(entries []models.QueueEntry) []models.QueueEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.PriorityRank != b.PriorityRank {
			return a.PriorityRank < b.PriorityRank
		}
		if !a.ArrivedAt.Equal(b.ArrivedAt) {
			return a.ArrivedAt.Before(b.ArrivedAt)
		}
		return a.ID < b.ID
	})
	return entries
}

// SortByRecency puts the most recently called entry first. Entries never
// called go last, in arrival order.
func SortByRecency(entries []models.QueueEntry) []models.QueueEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.CalledAt != nil && b.CalledAt != nil:
			if !a.CalledAt.Equal(*b.CalledAt) {
				return a.CalledAt.After(*b.CalledAt)
			}
		case a.CalledAt != nil:
			return true
		case b.CalledAt != nil:
			return false
		}
		if !a.ArrivedAt.Equal(b.ArrivedAt) {
			return a.ArrivedAt.Before(b.ArrivedAt)
		}
		return a.ID < b.ID
	})
	return entries
}

// SortForStatus picks the ordering a list of status shows: recency for
// in-service, priority for everything else.
func SortForStatus(status models.Status, entries []models.QueueEntry) []models.QueueEntry {
	if status == models.StatusInService {
		return SortByRecency(entries)
	}
	return SortByPriority(entries)
}
