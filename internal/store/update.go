package store

import "clinic-queue/internal/models"

// EntryUpdate - partial update of a queue entry. Nil fields are left as
// they are. Timestamps are not part of it: the store assigns them.
type EntryUpdate struct {
	Status           *models.Status
	PatientID        *string
	PatientName      *string
	DepartmentID     *string
	DepartmentName   *string
	RoomNumber       *string
	ProfessionalID   *string
	ProfessionalName *string
	Classification   *string
	PriorityRank     *int
}

// Empty reports whether the update changes nothing.
func (u EntryUpdate) Empty() bool {
	return u == EntryUpdate{}
}

func (u EntryUpdate) apply(e *models.QueueEntry) {
	if u.Status != nil {
		e.Status = *u.Status
	}
	setString(&e.PatientID, u.PatientID)
	setString(&e.PatientName, u.PatientName)
	setString(&e.DepartmentID, u.DepartmentID)
	setString(&e.DepartmentName, u.DepartmentName)
	setString(&e.RoomNumber, u.RoomNumber)
	setString(&e.ProfessionalID, u.ProfessionalID)
	setString(&e.ProfessionalName, u.ProfessionalName)
	setString(&e.Classification, u.Classification)
	if u.PriorityRank != nil {
		e.PriorityRank = *u.PriorityRank
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Changes builds the update that turns before into after, covering every
// column a transition may touch.
func Changes(before, after models.QueueEntry) EntryUpdate {
	var u EntryUpdate
	if after.Status != before.Status {
		s := after.Status
		u.Status = &s
	}
	u.PatientID = diffString(before.PatientID, after.PatientID)
	u.PatientName = diffString(before.PatientName, after.PatientName)
	u.DepartmentID = diffString(before.DepartmentID, after.DepartmentID)
	u.DepartmentName = diffString(before.DepartmentName, after.DepartmentName)
	u.RoomNumber = diffString(before.RoomNumber, after.RoomNumber)
	u.ProfessionalID = diffString(before.ProfessionalID, after.ProfessionalID)
	u.ProfessionalName = diffString(before.ProfessionalName, after.ProfessionalName)
	u.Classification = diffString(before.Classification, after.Classification)
	if after.PriorityRank != before.PriorityRank {
		r := after.PriorityRank
		u.PriorityRank = &r
	}
	return u
}

func diffString(before, after string) *string {
	if before == after {
		return nil
	}
	return &after
}
