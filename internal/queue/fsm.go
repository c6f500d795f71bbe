package queue

import (
	"fmt"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/models"
)

// EventKind - an operator action that moves an entry between statuses.
// Intake is not an event: it creates the entry.
type EventKind string

const (
	EventCallToTriage  EventKind = "call-to-triage"
	EventIdentify      EventKind = "identify"
	EventCall          EventKind = "call"
	EventFinalize      EventKind = "finalize"
	EventReturnToQueue EventKind = "return-to-queue"
	EventCancel        EventKind = "cancel"
	EventRevert        EventKind = "revert"
)

// Assignment - location and triage data an event may carry. Empty fields
// leave the entry's current value in place.
type Assignment struct {
	DepartmentID     string
	DepartmentName   string
	RoomNumber       string
	ProfessionalID   string
	ProfessionalName string
	Classification   string
	PriorityRank     int
}

// Event - input of Transition.
type Event struct {
	Kind EventKind

	// Target is the status chosen by the operator on revert.
	Target models.Status

	// Patient is attached on identify.
	Patient *models.Patient

	Assignment Assignment
}

// transitions - the legal status graph. Revert targets are listed
// separately because the operator picks them.
var transitions = map[models.Status]map[EventKind]models.Status{
	models.StatusPending: {
		EventCallToTriage: models.StatusWaitingForTriage,
	},
	models.StatusWaitingForTriage: {
		EventIdentify: models.StatusWaiting,
	},
	models.StatusWaiting: {
		EventCall:   models.StatusInService,
		EventCancel: models.StatusCancelled,
	},
	models.StatusInService: {
		EventFinalize:      models.StatusCompleted,
		EventReturnToQueue: models.StatusWaiting,
		EventCancel:        models.StatusCancelled,
	},
}

var revertTargets = map[models.Status]bool{
	models.StatusPending:          true,
	models.StatusWaitingForTriage: true,
	models.StatusWaiting:          true,
}

// RejectedTransition is returned for any event the graph does not allow.
// The entry is left untouched.
type RejectedTransition struct {
	From   models.Status
	Event  EventKind
	Target models.Status
	Reason string
}

func (r *RejectedTransition) Error() string {
	msg := fmt.Sprintf("cannot %s an entry that is %s", r.Event, r.From)
	if r.Target != "" {
		msg = fmt.Sprintf("cannot %s an entry from %s to %s", r.Event, r.From, r.Target)
	}
	if r.Reason != "" {
		msg += ": " + r.Reason
	}
	return msg
}

// AppKind marks the rejection as a business-rule conflict.
func (r *RejectedTransition) AppKind() apperr.Kind {
	return apperr.KindConflict
}

// Allowed reports whether kind is an edge out of status at all, before
// looking at the event payload.
func Allowed(status models.Status, kind EventKind) bool {
	if kind == EventRevert {
		return status == models.StatusCancelled
	}
	_, ok := transitions[status][kind]
	return ok
}

// Next reports the status entry would move to on ev, or a
// *RejectedTransition.
func Next(entry models.QueueEntry, ev Event) (models.Status, error) {
	if ev.Kind == EventRevert {
		if entry.Status != models.StatusCancelled {
			return "", &RejectedTransition{From: entry.Status, Event: ev.Kind}
		}
		if !revertTargets[ev.Target] {
			return "", &RejectedTransition{From: entry.Status, Event: ev.Kind, Target: ev.Target,
				Reason: "revert target must be pending, waiting-for-triage or waiting"}
		}
		if ev.Target == models.StatusWaiting && !entry.HasPatient() {
			return "", &RejectedTransition{From: entry.Status, Event: ev.Kind, Target: ev.Target,
				Reason: "the entry has no identified patient"}
		}
		return ev.Target, nil
	}

	to, ok := transitions[entry.Status][ev.Kind]
	if !ok {
		return "", &RejectedTransition{From: entry.Status, Event: ev.Kind}
	}
	if ev.Kind == EventIdentify && (ev.Patient == nil || ev.Patient.ID == "") {
		return "", apperr.Validation("identify needs a patient")
	}
	return to, nil
}

// Transition applies ev to entry and returns the updated copy. It is pure:
// timestamps and persistence belong to the store.
func Transition(entry models.QueueEntry, ev Event) (models.QueueEntry, error) {
	to, err := Next(entry, ev)
	if err != nil {
		return entry, err
	}

	out := entry
	out.Status = to
	if ev.Patient != nil && ev.Kind == EventIdentify {
		out.PatientID = ev.Patient.ID
		out.PatientName = ev.Patient.Name
	}
	if ev.Kind == EventRevert {
		out.CalledAt = nil
		out.CompletedAt = nil
	}
	ev.Assignment.applyTo(&out)
	return out, nil
}

func (a Assignment) applyTo(e *models.QueueEntry) {
	if a.DepartmentID != "" {
		e.DepartmentID = a.DepartmentID
		e.DepartmentName = a.DepartmentName
		e.RoomNumber = a.RoomNumber
	}
	if a.ProfessionalID != "" {
		e.ProfessionalID = a.ProfessionalID
		e.ProfessionalName = a.ProfessionalName
	}
	if a.Classification != "" {
		e.Classification = a.Classification
		e.PriorityRank = a.PriorityRank
	}
}
