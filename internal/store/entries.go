package store

import (
	"context"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/models"

	"github.com/doug-martin/goqu/v9"
)

// Event names written to queue_events
const (
	EventIntake = "intake"
	EventUpdate = "update"
)

// Create inserts entry and returns its id. The duplicate-active-entry
// check and the insert happen in the same transaction, so two concurrent
// intakes for one patient cannot both succeed.
func (s *Store) Create(ctx context.Context, sess models.Session, entry models.QueueEntry) (string, error) {
	if !entry.Status.IsActive() {
		return "", apperr.Validation("a new entry must start in an active status, got %q", entry.Status)
	}

	err := s.InTx(ctx, func(tx *Tx) error {
		if err := tx.InsertEntry(ctx, sess.Actor(), &entry); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, models.QueueEvent{
			EntryID:   entry.ID,
			Event:     EventIntake,
			ToStatus:  string(entry.Status),
			ActorID:   sess.UserID,
			ActorName: sess.Actor(),
		})
	})
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// UpdateFields applies a partial update outside of any transition. The
// legal status graph is enforced by the queue engine, not here.
func (s *Store) UpdateFields(ctx context.Context, sess models.Session, id string, upd EntryUpdate) (models.QueueEntry, error) {
	var out models.QueueEntry
	err := s.InTx(ctx, func(tx *Tx) error {
		before, err := tx.Entry(ctx, id)
		if err != nil {
			return err
		}
		out, err = tx.UpdateEntry(ctx, sess.Actor(), id, upd)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, models.QueueEvent{
			EntryID:    id,
			Event:      EventUpdate,
			FromStatus: string(before.Status),
			ToStatus:   string(out.Status),
			ActorID:    sess.UserID,
			ActorName:  sess.Actor(),
		})
	})
	return out, err
}

// Delete physically removes an entry (administrative removal).
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.InTx(ctx, func(tx *Tx) error {
		return tx.DeleteEntry(ctx, id)
	})
}

// Get loads one entry without locking it.
func (s *Store) Get(ctx context.Context, id string) (models.QueueEntry, error) {
	var e models.QueueEntry
	found, err := s.from(tableEntries).Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &e)
	if err != nil {
		return e, apperr.Internal("load queue entry", err)
	}
	if !found {
		return e, apperr.NotFound("queue entry %s not found", id)
	}
	return e, nil
}

// ListByStatus returns every entry in one of statuses, in arrival order.
// Priority ordering is the reader's job.
func (s *Store) ListByStatus(ctx context.Context, statuses ...models.Status) ([]models.QueueEntry, error) {
	values := make([]string, 0, len(statuses))
	for _, st := range statuses {
		values = append(values, string(st))
	}

	entries := []models.QueueEntry{}
	ds := s.from(tableEntries)
	if len(values) > 0 {
		ds = ds.Where(goqu.C("status").In(values))
	}
	err := ds.Order(goqu.C("arrived_at").Asc(), goqu.C("id").Asc()).ScanStructsContext(ctx, &entries)
	if err != nil {
		return nil, apperr.Internal("list queue entries", err)
	}
	return entries, nil
}

// ActiveForPatient returns the active entry of a patient, if any. It is
// a plain read; the authoritative check is the claim taken inside Create.
func (s *Store) ActiveForPatient(ctx context.Context, patientID string) (*models.QueueEntry, error) {
	var e models.QueueEntry
	found, err := s.from(tableEntries).Where(
		goqu.C("patient_id").Eq(patientID),
		goqu.C("status").In(activeValues()),
	).ScanStructContext(ctx, &e)
	if err != nil {
		return nil, apperr.Internal("check active entry", err)
	}
	if !found {
		return nil, nil
	}
	return &e, nil
}

// CountWaitingByClassification - dashboard statistic.
func (s *Store) CountWaitingByClassification(ctx context.Context) (map[string]int, error) {
	type row struct {
		Classification string `db:"classification"`
		Total          int    `db:"total"`
	}
	var rows []row
	err := s.from(tableEntries).
		Select(goqu.C("classification"), goqu.COUNT("*").As("total")).
		Where(goqu.C("status").Eq(string(models.StatusWaiting))).
		GroupBy(goqu.C("classification")).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, apperr.Internal("count waiting entries", err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Classification] = r.Total
	}
	return out, nil
}

// Events returns the audit trail of one entry, oldest first.
func (s *Store) Events(ctx context.Context, entryID string) ([]models.QueueEvent, error) {
	events := []models.QueueEvent{}
	err := s.from(tableEvents).Where(goqu.C("entry_id").Eq(entryID)).
		Order(goqu.C("id").Asc()).ScanStructsContext(ctx, &events)
	if err != nil {
		return nil, apperr.Internal("list queue events", err)
	}
	return events, nil
}

func activeValues() []string {
	values := make([]string, 0, len(models.ActiveStatuses))
	for _, st := range models.ActiveStatuses {
		values = append(values, string(st))
	}
	return values
}
