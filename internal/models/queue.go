package models

import (
	"time"
)

// Status - position of an entry in the service pipeline
type Status string

const (
	StatusPending          Status = "pending"            // ticket issued, not triaged
	StatusWaitingForTriage Status = "waiting-for-triage" // called to triage, no patient yet
	StatusWaiting          Status = "waiting"            // identified, in the main queue
	StatusInService        Status = "in-service"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

// ActiveStatuses - at most one entry per patient may be in one of these.
var ActiveStatuses = []Status{
	StatusPending,
	StatusWaitingForTriage,
	StatusWaiting,
	StatusInService,
}

// AllStatuses - every known status, in pipeline order.
var AllStatuses = []Status{
	StatusPending,
	StatusWaitingForTriage,
	StatusWaiting,
	StatusInService,
	StatusCompleted,
	StatusCancelled,
}

func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	for _, a := range AllStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// ParseStatus - parse a status coming from a request or a stored row.
func ParseStatus(v string) (Status, bool) {
	s := Status(v)
	return s, s.Valid()
}

// QueueEntry - one patient's position in the pipeline (table queue_entries)
type QueueEntry struct {
	ID               string     `json:"id" db:"id"`
	PatientID        string     `json:"patient_id" db:"patient_id"`
	PatientName      string     `json:"patient_name" db:"patient_name"`
	DepartmentID     string     `json:"department_id" db:"department_id"`
	DepartmentName   string     `json:"department_name" db:"department_name"`
	RoomNumber       string     `json:"room_number" db:"room_number"`
	ProfessionalID   string     `json:"professional_id" db:"professional_id"`
	ProfessionalName string     `json:"professional_name" db:"professional_name"`
	Ticket           string     `json:"ticket" db:"ticket"`
	Classification   string     `json:"classification" db:"classification"`
	PriorityRank     int        `json:"priority_rank" db:"priority_rank"`
	Status           Status     `json:"status" db:"status"`
	ArrivedAt        time.Time  `json:"arrived_at" db:"arrived_at"`
	CalledAt         *time.Time `json:"called_at" db:"called_at"`
	CompletedAt      *time.Time `json:"completed_at" db:"completed_at"`
	CreatedBy        string     `json:"created_by" db:"created_by"`
	UpdatedBy        string     `json:"updated_by" db:"updated_by"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// HasPatient - true once a patient identity is attached.
func (e QueueEntry) HasPatient() bool {
	return e.PatientID != ""
}

// RoomLabel - what the panel shows as the place to go.
func (e QueueEntry) RoomLabel() string {
	if e.RoomNumber != "" && e.DepartmentName != "" {
		return e.DepartmentName + " - " + e.RoomNumber
	}
	if e.DepartmentName != "" {
		return e.DepartmentName
	}
	return e.RoomNumber
}

// CallRecord - immutable entry of the panel log (table call_records)
type CallRecord struct {
	ID               string    `json:"id" db:"id"`
	EntryID          string    `json:"entry_id" db:"entry_id"`
	Ticket           string    `json:"ticket" db:"ticket"`
	RoomLabel        string    `json:"room_label" db:"room_label"`
	ProfessionalName string    `json:"professional_name" db:"professional_name"`
	PublishedAt      time.Time `json:"published_at" db:"published_at"`
}

// QueueEvent - audit row written with every transition (table queue_events)
type QueueEvent struct {
	ID         int64     `json:"id" db:"id"`
	EntryID    string    `json:"entry_id" db:"entry_id"`
	Event      string    `json:"event" db:"event"`
	FromStatus string    `json:"from_status" db:"from_status"`
	ToStatus   string    `json:"to_status" db:"to_status"`
	ActorID    int64     `json:"actor_id" db:"actor_id"`
	ActorName  string    `json:"actor_name" db:"actor_name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
