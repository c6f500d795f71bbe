package queue

import (
	"context"
	"strings"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/counter"
	"clinic-queue/internal/models"
	"clinic-queue/internal/realtime"
	"clinic-queue/internal/store"

	"github.com/rs/zerolog/log"
)

// Audit event names that are not status transitions
const (
	auditAnnounce = "announce"
	auditRemove   = "remove"
)

// IntakeRequest - a new walk-in. Status is pending (ticket only, triage
// later) or waiting (identified at the desk); when empty it is waiting if
// a patient is given and pending otherwise.
type IntakeRequest struct {
	PatientID      string        `json:"patient_id"`
	DepartmentID   string        `json:"department_id"`
	ProfessionalID string        `json:"professional_id"`
	Classification string        `json:"classification"`
	Status         models.Status `json:"status"`
}

// LocationRequest - where an entry is sent, used by call-to-triage and
// return-to-queue.
type LocationRequest struct {
	DepartmentID   string `json:"department_id"`
	ProfessionalID string `json:"professional_id"`
	Classification string `json:"classification"`
}

// IdentifyRequest - the patient found at triage, plus optional
// reassignment.
type IdentifyRequest struct {
	PatientID      string `json:"patient_id"`
	DepartmentID   string `json:"department_id"`
	ProfessionalID string `json:"professional_id"`
	Classification string `json:"classification"`
}

// Service runs every operator action against the queue. Each transition
// is one store transaction; readers are notified after it commits.
type Service struct {
	store     *store.Store
	counter   counter.Allocator
	classes   *Classifier
	publisher *Publisher
	notifier  realtime.Notifier
}

func NewService(s *store.Store, alloc counter.Allocator, classes *Classifier, notifier realtime.Notifier) *Service {
	return &Service{
		store:     s,
		counter:   alloc,
		classes:   classes,
		publisher: NewPublisher(s, notifier),
		notifier:  notifier,
	}
}

func (s *Service) Publisher() *Publisher {
	return s.publisher
}

func (s *Service) Classes() []Class {
	return s.classes.Classes()
}

/*
|--------------------------------------------------------------------------
| Intake
|--------------------------------------------------------------------------
*/

// Intake issues a ticket and creates the entry.
func (s *Service) Intake(ctx context.Context, sess models.Session, req IntakeRequest) (models.QueueEntry, error) {
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)

	if strings.TrimSpace(req.Classification) == "" {
		return models.QueueEntry{}, apperr.Validation("classification is required")
	}
	class, err := s.classes.Lookup(req.Classification)
	if err != nil {
		return models.QueueEntry{}, err
	}

	status := req.Status
	if status == "" {
		status = models.StatusPending
		if req.PatientID != "" {
			status = models.StatusWaiting
		}
	}
	switch status {
	case models.StatusPending:
	case models.StatusWaiting:
		if req.PatientID == "" {
			return models.QueueEntry{}, apperr.Validation("patient is required to join the waiting queue")
		}
		if req.DepartmentID == "" {
			return models.QueueEntry{}, apperr.Validation("department is required")
		}
		if req.ProfessionalID == "" {
			return models.QueueEntry{}, apperr.Validation("professional is required")
		}
	default:
		return models.QueueEntry{}, apperr.Validation("a new entry starts as pending or waiting, not %q", status)
	}

	entry := models.QueueEntry{
		Classification: class.Name,
		PriorityRank:   class.Rank,
		Status:         status,
	}
	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		a, err := resolve(ctx, tx, req.DepartmentID, req.ProfessionalID)
		if err != nil {
			return err
		}
		a.applyTo(&entry)
		if req.PatientID == "" {
			return nil
		}
		p, err := tx.Patient(ctx, req.PatientID)
		if err != nil {
			return err
		}
		entry.PatientID, entry.PatientName = p.ID, p.Name
		return nil
	})
	if err != nil {
		return models.QueueEntry{}, err
	}

	// Cheap early answer for the common duplicate; Create holds the real
	// guarantee.
	if entry.HasPatient() {
		active, err := s.store.ActiveForPatient(ctx, entry.PatientID)
		if err != nil {
			return models.QueueEntry{}, err
		}
		if active != nil {
			return models.QueueEntry{}, apperr.Conflict("patient %s already has an active queue entry (%s, %s)",
				entry.PatientName, active.Ticket, active.Status)
		}
	}

	n, err := s.counter.Allocate(ctx, counter.TicketName(class.Name))
	if err != nil {
		return models.QueueEntry{}, err
	}
	entry.Ticket = class.Ticket(n)

	id, err := s.store.Create(ctx, sess, entry)
	if err != nil {
		log.Warn().Str("component", "queue").Str("ticket", entry.Ticket).Str("actor", sess.Actor()).
			Err(err).Msg("intake rejected")
		return models.QueueEntry{}, err
	}

	log.Info().Str("component", "queue").Str("entry", id).Str("ticket", entry.Ticket).
		Str("status", string(status)).Str("actor", sess.Actor()).Msg("intake")
	s.notify(realtime.TopicQueue)
	return s.store.Get(ctx, id)
}

// resolve looks up the referenced department and professional; empty ids
// are skipped.
func resolve(ctx context.Context, tx *store.Tx, departmentID, professionalID string) (Assignment, error) {
	var a Assignment
	if departmentID != "" {
		d, err := tx.Department(ctx, departmentID)
		if err != nil {
			return a, err
		}
		a.DepartmentID, a.DepartmentName, a.RoomNumber = d.ID, d.Name, d.RoomNumber
	}
	if professionalID != "" {
		p, err := tx.Professional(ctx, professionalID)
		if err != nil {
			return a, err
		}
		a.ProfessionalID, a.ProfessionalName = p.ID, p.Name
	}
	return a, nil
}

/*
|--------------------------------------------------------------------------
| Transitions
|--------------------------------------------------------------------------
*/

// step - one transition. prepare builds the event from the locked entry
// inside the transaction; publish appends a call record in the same
// transaction.
type step struct {
	kind    EventKind
	target  models.Status
	prepare func(ctx context.Context, tx *store.Tx, entry models.QueueEntry) (Event, error)
	publish bool
}

func (s *Service) apply(ctx context.Context, sess models.Session, id string, st step) (models.QueueEntry, error) {
	var (
		before, after models.QueueEntry
		call          *models.CallRecord
	)

	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		call = nil

		var err error
		before, err = tx.Entry(ctx, id)
		if err != nil {
			return err
		}
		if !Allowed(before.Status, st.kind) {
			return &RejectedTransition{From: before.Status, Event: st.kind, Target: st.target}
		}

		ev := Event{Kind: st.kind, Target: st.target}
		if st.prepare != nil {
			ev, err = st.prepare(ctx, tx, before)
			if err != nil {
				return err
			}
			ev.Kind, ev.Target = st.kind, st.target
		}

		next, err := Transition(before, ev)
		if err != nil {
			return err
		}
		after, err = tx.UpdateEntry(ctx, sess.Actor(), id, store.Changes(before, next))
		if err != nil {
			return err
		}

		if st.publish {
			rec, err := s.publisher.PublishTx(ctx, tx, after)
			if err != nil {
				return err
			}
			call = &rec
		}

		return tx.AppendEvent(ctx, models.QueueEvent{
			EntryID:    id,
			Event:      string(st.kind),
			FromStatus: string(before.Status),
			ToStatus:   string(after.Status),
			ActorID:    sess.UserID,
			ActorName:  sess.Actor(),
		})
	})
	if err != nil {
		log.Warn().Str("component", "queue").Str("entry", id).Str("event", string(st.kind)).
			Str("actor", sess.Actor()).Err(err).Msg("transition rejected")
		return models.QueueEntry{}, err
	}

	logEvent := log.Info().Str("component", "queue").Str("entry", id).Str("ticket", after.Ticket).
		Str("event", string(st.kind)).Str("from", string(before.Status)).Str("to", string(after.Status)).
		Str("actor", sess.Actor())
	if call != nil {
		logEvent = logEvent.Str("call", call.ID).Str("room", call.RoomLabel)
		s.notify(realtime.TopicQueue, realtime.TopicCalls)
	} else {
		s.notify(realtime.TopicQueue)
	}
	logEvent.Msg("transition")
	return after, nil
}

// CallToTriage sends a pending ticket to a triage station and announces
// it on the panel.
func (s *Service) CallToTriage(ctx context.Context, sess models.Session, id string, req LocationRequest) (models.QueueEntry, error) {
	if strings.TrimSpace(req.DepartmentID) == "" {
		return models.QueueEntry{}, apperr.Validation("triage department is required")
	}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		return models.QueueEntry{}, apperr.Validation("triage professional is required")
	}

	return s.apply(ctx, sess, id, step{
		kind:    EventCallToTriage,
		publish: true,
		prepare: func(ctx context.Context, tx *store.Tx, _ models.QueueEntry) (Event, error) {
			a, err := resolve(ctx, tx, strings.TrimSpace(req.DepartmentID), strings.TrimSpace(req.ProfessionalID))
			return Event{Assignment: a}, err
		},
	})
}

// Identify attaches the patient found at triage and moves the entry into
// the waiting queue, optionally redirecting or reclassifying it.
func (s *Service) Identify(ctx context.Context, sess models.Session, id string, req IdentifyRequest) (models.QueueEntry, error) {
	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		return models.QueueEntry{}, apperr.Validation("patient is required")
	}
	class, err := s.optionalClass(req.Classification)
	if err != nil {
		return models.QueueEntry{}, err
	}

	return s.apply(ctx, sess, id, step{
		kind: EventIdentify,
		prepare: func(ctx context.Context, tx *store.Tx, entry models.QueueEntry) (Event, error) {
			p, err := tx.Patient(ctx, patientID)
			if err != nil {
				return Event{}, err
			}
			a, err := resolve(ctx, tx, strings.TrimSpace(req.DepartmentID), strings.TrimSpace(req.ProfessionalID))
			if err != nil {
				return Event{}, err
			}
			if class != nil {
				a.Classification, a.PriorityRank = class.Name, class.Rank
			}
			next := entry
			a.applyTo(&next)
			if next.DepartmentID == "" || next.ProfessionalID == "" {
				return Event{}, apperr.Validation("department and professional are required to join the waiting queue")
			}
			return Event{Patient: &p, Assignment: a}, nil
		},
	})
}

// Call takes the entry into service and announces it. The department and
// professional are re-read so a call never points at a removed record.
func (s *Service) Call(ctx context.Context, sess models.Session, id string) (models.QueueEntry, error) {
	return s.apply(ctx, sess, id, step{
		kind:    EventCall,
		publish: true,
		prepare: func(ctx context.Context, tx *store.Tx, entry models.QueueEntry) (Event, error) {
			if entry.DepartmentID == "" || entry.ProfessionalID == "" {
				return Event{}, apperr.Validation("entry %s has no department or professional assigned", entry.Ticket)
			}
			a, err := resolve(ctx, tx, entry.DepartmentID, entry.ProfessionalID)
			return Event{Assignment: a}, err
		},
	})
}

// Finalize completes the service.
func (s *Service) Finalize(ctx context.Context, sess models.Session, id string) (models.QueueEntry, error) {
	return s.apply(ctx, sess, id, step{kind: EventFinalize})
}

// ReturnToQueue puts an in-service entry back into the waiting queue with
// a new destination and classification, all in the same write.
func (s *Service) ReturnToQueue(ctx context.Context, sess models.Session, id string, req LocationRequest) (models.QueueEntry, error) {
	if strings.TrimSpace(req.DepartmentID) == "" {
		return models.QueueEntry{}, apperr.Validation("department is required")
	}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		return models.QueueEntry{}, apperr.Validation("professional is required")
	}
	if strings.TrimSpace(req.Classification) == "" {
		return models.QueueEntry{}, apperr.Validation("classification is required")
	}
	class, err := s.classes.Lookup(req.Classification)
	if err != nil {
		return models.QueueEntry{}, err
	}

	return s.apply(ctx, sess, id, step{
		kind: EventReturnToQueue,
		prepare: func(ctx context.Context, tx *store.Tx, _ models.QueueEntry) (Event, error) {
			a, err := resolve(ctx, tx, strings.TrimSpace(req.DepartmentID), strings.TrimSpace(req.ProfessionalID))
			a.Classification, a.PriorityRank = class.Name, class.Rank
			return Event{Assignment: a}, err
		},
	})
}

func (s *Service) Cancel(ctx context.Context, sess models.Session, id string) (models.QueueEntry, error) {
	return s.apply(ctx, sess, id, step{kind: EventCancel})
}

// Revert brings a cancelled entry back to the status the operator picked.
func (s *Service) Revert(ctx context.Context, sess models.Session, id string, target models.Status) (models.QueueEntry, error) {
	if !target.Valid() {
		return models.QueueEntry{}, apperr.Validation("unknown status %q", target)
	}
	return s.apply(ctx, sess, id, step{kind: EventRevert, target: target})
}

func (s *Service) optionalClass(name string) (*Class, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	class, err := s.classes.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &class, nil
}

/*
|--------------------------------------------------------------------------
| Panel and administration
|--------------------------------------------------------------------------
*/

// Announce repeats the call of an entry that is currently being called,
// without changing it.
func (s *Service) Announce(ctx context.Context, sess models.Session, id string) (models.CallRecord, error) {
	var rec models.CallRecord
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		entry, err := tx.Entry(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status != models.StatusInService && entry.Status != models.StatusWaitingForTriage {
			return apperr.Conflict("only an entry in service or called to triage can be announced, %s is %s",
				entry.Ticket, entry.Status)
		}
		rec, err = s.publisher.PublishTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, models.QueueEvent{
			EntryID:    id,
			Event:      auditAnnounce,
			FromStatus: string(entry.Status),
			ToStatus:   string(entry.Status),
			ActorID:    sess.UserID,
			ActorName:  sess.Actor(),
		})
	})
	if err != nil {
		return rec, err
	}

	log.Info().Str("component", "queue").Str("entry", id).Str("ticket", rec.Ticket).
		Str("actor", sess.Actor()).Msg("call announced again")
	s.notify(realtime.TopicCalls)
	return rec, nil
}

// Remove physically deletes an entry. Administrative; the audit trail
// keeps a row for it.
func (s *Service) Remove(ctx context.Context, sess models.Session, id string) error {
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		entry, err := tx.Entry(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteEntry(ctx, id); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, models.QueueEvent{
			EntryID:    id,
			Event:      auditRemove,
			FromStatus: string(entry.Status),
			ActorID:    sess.UserID,
			ActorName:  sess.Actor(),
		})
	})
	if err != nil {
		return err
	}

	log.Info().Str("component", "queue").Str("entry", id).Str("actor", sess.Actor()).Msg("entry removed")
	s.notify(realtime.TopicQueue)
	return nil
}

// ClearPanel empties the call log.
func (s *Service) ClearPanel(ctx context.Context, sess models.Session) (int64, error) {
	n, err := s.publisher.ClearLog(ctx)
	if err != nil {
		return 0, err
	}
	log.Info().Str("component", "queue").Int64("removed", n).Str("actor", sess.Actor()).Msg("panel cleared")
	return n, nil
}

/*
|--------------------------------------------------------------------------
| Reads
|--------------------------------------------------------------------------
*/

// List returns the entries in status, sorted the way that list is shown.
func (s *Service) List(ctx context.Context, status models.Status) ([]models.QueueEntry, error) {
	if !status.Valid() {
		return nil, apperr.Validation("unknown status %q", status)
	}
	entries, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	return SortForStatus(status, entries), nil
}

func (s *Service) Get(ctx context.Context, id string) (models.QueueEntry, error) {
	return s.store.Get(ctx, id)
}

// History - audit trail of one entry.
func (s *Service) History(ctx context.Context, id string) ([]models.QueueEvent, error) {
	return s.store.Events(ctx, id)
}

// WaitingByClassification - how many entries wait in each classification.
func (s *Service) WaitingByClassification(ctx context.Context) (map[string]int, error) {
	return s.store.CountWaitingByClassification(ctx)
}

// Panel - what the public display shows, newest first.
func (s *Service) Panel(ctx context.Context) ([]models.CallRecord, error) {
	return s.publisher.Latest(ctx, PanelSize)
}

func (s *Service) notify(topics ...realtime.Topic) {
	if s.notifier != nil {
		s.notifier.Notify(topics...)
	}
}
