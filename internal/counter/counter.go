// Package counter allocates collision-free sequence numbers for tickets and
// record codes.
package counter

import (
	"context"
	"strings"

	"clinic-queue/internal/apperr"
)

// Allocator hands out values for a named sequence. Every call returns a
// value strictly greater than any earlier call for the same name, with no
// repeats and no gaps. The first value of a new sequence is 1.
type Allocator interface {
	Allocate(ctx context.Context, name string) (int64, error)
}

const ticketPrefix = "ticket-"

// TicketName - counter used for the tickets of a classification.
func TicketName(classification string) string {
	return ticketPrefix + strings.ToLower(strings.TrimSpace(classification))
}

// IsTicketName reports whether name belongs to the ticket sequences, which
// only intake may advance.
func IsTicketName(name string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), ticketPrefix)
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation("counter name is required")
	}
	if len(name) > 128 {
		return apperr.Validation("counter name is longer than 128 characters")
	}
	return nil
}
