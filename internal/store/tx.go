package store

import (
	"context"
	"time"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
)

// Tx - the store primitives bound to one transaction. All writes in a Tx
// share the same timestamp, taken when the transaction started.
type Tx struct {
	tx      *goqu.TxDatabase
	dialect string
	now     time.Time
}

// Now - the write timestamp of this transaction.
func (t *Tx) Now() time.Time {
	return t.now
}

func (t *Tx) from(table string) *goqu.SelectDataset {
	return t.tx.From(table).Prepared(true)
}

// locked adds FOR UPDATE where the engine supports row locks. SQLite
// serializes writers on the database lock instead.
func (t *Tx) locked(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if t.dialect == DialectMySQL {
		return ds.ForUpdate(exp.Wait)
	}
	return ds
}

// Entry loads one entry and locks it for the rest of the transaction.
func (t *Tx) Entry(ctx context.Context, id string) (models.QueueEntry, error) {
	var e models.QueueEntry
	found, err := t.locked(t.from(tableEntries).Where(goqu.C("id").Eq(id))).
		ScanStructContext(ctx, &e)
	if err != nil {
		return e, apperr.Internal("load queue entry", err)
	}
	if !found {
		return e, apperr.NotFound("queue entry %s not found", id)
	}
	return e, nil
}

// InsertEntry writes a new entry. The id, arrival, audit and update
// columns are assigned here; whatever the caller put in them is ignored.
// A patient id, when present, is claimed in the same transaction.
func (t *Tx) InsertEntry(ctx context.Context, actor string, e *models.QueueEntry) error {
	e.ID = uuid.NewString()
	e.ArrivedAt = t.now
	e.UpdatedAt = t.now
	e.CalledAt = nil
	e.CompletedAt = nil
	e.CreatedBy = actor
	e.UpdatedBy = actor

	if e.HasPatient() && e.Status.IsActive() {
		if err := t.claim(ctx, e.PatientID, e.ID); err != nil {
			return err
		}
	}

	_, err := t.tx.Insert(tableEntries).Prepared(true).Rows(goqu.Record{
		"id":                e.ID,
		"patient_id":        e.PatientID,
		"patient_name":      e.PatientName,
		"department_id":     e.DepartmentID,
		"department_name":   e.DepartmentName,
		"room_number":       e.RoomNumber,
		"professional_id":   e.ProfessionalID,
		"professional_name": e.ProfessionalName,
		"ticket":            e.Ticket,
		"classification":    e.Classification,
		"priority_rank":     e.PriorityRank,
		"status":            string(e.Status),
		"arrived_at":        e.ArrivedAt,
		"called_at":         nil,
		"completed_at":      nil,
		"created_by":        e.CreatedBy,
		"updated_by":        e.UpdatedBy,
		"updated_at":        e.UpdatedAt,
	}).Executor().ExecContext(ctx)
	if err != nil {
		return apperr.Internal("insert queue entry", err)
	}
	return nil
}

// UpdateEntry applies a partial update to a locked entry and returns the
// result. called_at and completed_at are stamped when the status moves
// into in-service and completed, never earlier than the previous stamp.
// Both are cleared when a cancelled entry goes back into the queue.
func (t *Tx) UpdateEntry(ctx context.Context, actor string, id string, upd EntryUpdate) (models.QueueEntry, error) {
	before, err := t.Entry(ctx, id)
	if err != nil {
		return before, err
	}

	after := before
	upd.apply(&after)
	t.stamp(before, &after)
	after.UpdatedAt = t.now
	after.UpdatedBy = actor

	if err := t.syncClaim(ctx, before, after); err != nil {
		return before, err
	}

	_, err = t.tx.Update(tableEntries).Prepared(true).Set(goqu.Record{
		"patient_id":        after.PatientID,
		"patient_name":      after.PatientName,
		"department_id":     after.DepartmentID,
		"department_name":   after.DepartmentName,
		"room_number":       after.RoomNumber,
		"professional_id":   after.ProfessionalID,
		"professional_name": after.ProfessionalName,
		"classification":    after.Classification,
		"priority_rank":     after.PriorityRank,
		"status":            string(after.Status),
		"called_at":         nullableTime(after.CalledAt),
		"completed_at":      nullableTime(after.CompletedAt),
		"updated_by":        after.UpdatedBy,
		"updated_at":        after.UpdatedAt,
	}).Where(goqu.C("id").Eq(id)).Executor().ExecContext(ctx)
	if err != nil {
		return before, apperr.Internal("update queue entry", err)
	}
	return after, nil
}

func (t *Tx) stamp(before models.QueueEntry, after *models.QueueEntry) {
	if after.Status == before.Status {
		return
	}
	switch after.Status {
	case models.StatusInService:
		called := notBefore(t.now, after.ArrivedAt)
		after.CalledAt = &called
	case models.StatusCompleted:
		floor := after.ArrivedAt
		if after.CalledAt != nil {
			floor = *after.CalledAt
		}
		completed := notBefore(t.now, floor)
		after.CompletedAt = &completed
	case models.StatusPending, models.StatusWaitingForTriage, models.StatusWaiting:
		if before.Status == models.StatusCancelled {
			after.CalledAt = nil
			after.CompletedAt = nil
		}
	}
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

// syncClaim keeps queue_active_patients in step with the entry: a claim
// exists exactly while the entry is active and has a patient.
func (t *Tx) syncClaim(ctx context.Context, before, after models.QueueEntry) error {
	held := before.HasPatient() && before.Status.IsActive()
	wants := after.HasPatient() && after.Status.IsActive()

	if held && (!wants || before.PatientID != after.PatientID) {
		if err := t.release(ctx, before.ID); err != nil {
			return err
		}
		held = false
	}
	if wants && !held {
		return t.claim(ctx, after.PatientID, after.ID)
	}
	return nil
}

// claim registers entryID as the active entry of patientID. A claim left
// by an entry that is no longer active is taken over.
func (t *Tx) claim(ctx context.Context, patientID, entryID string) error {
	var holder string
	found, err := t.locked(t.from(tableActive).Select("entry_id").
		Where(goqu.C("patient_id").Eq(patientID))).ScanValContext(ctx, &holder)
	if err != nil {
		return apperr.Internal("check active entry", err)
	}

	if found {
		if holder == entryID {
			return nil
		}
		var status string
		live, err := t.from(tableEntries).Select("status").
			Where(goqu.C("id").Eq(holder)).ScanValContext(ctx, &status)
		if err != nil {
			return apperr.Internal("check active entry", err)
		}
		if live && models.Status(status).IsActive() {
			return apperr.Conflict("patient %s already has an active queue entry", patientID)
		}
		_, err = t.tx.Update(tableActive).Prepared(true).
			Set(goqu.Record{"entry_id": entryID}).
			Where(goqu.C("patient_id").Eq(patientID)).Executor().ExecContext(ctx)
		if err != nil {
			return apperr.Internal("claim patient", err)
		}
		return nil
	}

	_, err = t.tx.Insert(tableActive).Prepared(true).Rows(goqu.Record{
		"patient_id": patientID,
		"entry_id":   entryID,
	}).Executor().ExecContext(ctx)
	if IsDuplicate(err) {
		return apperr.Conflict("patient %s already has an active queue entry", patientID)
	}
	if err != nil {
		return apperr.Internal("claim patient", err)
	}
	return nil
}

func (t *Tx) release(ctx context.Context, entryID string) error {
	_, err := t.tx.Delete(tableActive).Prepared(true).
		Where(goqu.C("entry_id").Eq(entryID)).Executor().ExecContext(ctx)
	if err != nil {
		return apperr.Internal("release patient", err)
	}
	return nil
}

// DeleteEntry physically removes an entry and its claim.
func (t *Tx) DeleteEntry(ctx context.Context, id string) error {
	if err := t.release(ctx, id); err != nil {
		return err
	}
	res, err := t.tx.Delete(tableEntries).Prepared(true).
		Where(goqu.C("id").Eq(id)).Executor().ExecContext(ctx)
	if err != nil {
		return apperr.Internal("delete queue entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("queue entry %s not found", id)
	}
	return nil
}

// AppendCall adds one record to the call log, stamped with the
// transaction time. Call record ids are time ordered (uuid v7).
func (t *Tx) AppendCall(ctx context.Context, rec *models.CallRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return apperr.Internal("generate call id", err)
	}
	rec.ID = id.String()
	rec.PublishedAt = t.now

	_, err = t.tx.Insert(tableCalls).Prepared(true).Rows(goqu.Record{
		"id":                rec.ID,
		"entry_id":          rec.EntryID,
		"ticket":            rec.Ticket,
		"room_label":        rec.RoomLabel,
		"professional_name": rec.ProfessionalName,
		"published_at":      rec.PublishedAt,
	}).Executor().ExecContext(ctx)
	if err != nil {
		return apperr.Internal("append call record", err)
	}
	return nil
}

// AppendEvent writes an audit row.
func (t *Tx) AppendEvent(ctx context.Context, ev models.QueueEvent) error {
	_, err := t.tx.Insert(tableEvents).Prepared(true).Rows(goqu.Record{
		"entry_id":    ev.EntryID,
		"event":       ev.Event,
		"from_status": ev.FromStatus,
		"to_status":   ev.ToStatus,
		"actor_id":    ev.ActorID,
		"actor_name":  ev.ActorName,
		"created_at":  t.now,
	}).Executor().ExecContext(ctx)
	if err != nil {
		return apperr.Internal("append queue event", err)
	}
	return nil
}

// Department loads a reference department.
func (t *Tx) Department(ctx context.Context, id string) (models.Department, error) {
	var d models.Department
	found, err := t.from(tableDepartments).Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &d)
	if err != nil {
		return d, apperr.Internal("load department", err)
	}
	if !found {
		return d, apperr.NotFound("department %s not found", id)
	}
	return d, nil
}

// Professional loads a reference professional.
func (t *Tx) Professional(ctx context.Context, id string) (models.Professional, error) {
	var p models.Professional
	found, err := t.from(tableProfessionals).Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &p)
	if err != nil {
		return p, apperr.Internal("load professional", err)
	}
	if !found {
		return p, apperr.NotFound("professional %s not found", id)
	}
	return p, nil
}

// Patient loads a reference patient.
func (t *Tx) Patient(ctx context.Context, id string) (models.Patient, error) {
	var p models.Patient
	found, err := t.from(tablePatients).Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &p)
	if err != nil {
		return p, apperr.Internal("load patient", err)
	}
	if !found {
		return p, apperr.NotFound("patient %s not found", id)
	}
	return p, nil
}
