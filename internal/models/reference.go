package models

// Department - read-only reference record (managed by the records screens)
type Department struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	RoomNumber string `json:"room_number" db:"room_number"`
}

// Professional - read-only reference record
type Professional struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	DepartmentID string `json:"department_id" db:"department_id"`
}

// Patient - read-only reference record
type Patient struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
