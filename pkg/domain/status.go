package domain

// StatusName is the lifecycle state of an entity.
type StatusName string

// Lifecycle states.
const (
	StatusActive  StatusName = "ACTIVE"
	StatusDeleted StatusName = "DELETED"
	StatusRemoved StatusName = "REMOVED"
)

// Status records the lifecycle state and the moment it was entered. Date uses
// the catalog timestamp layout (yyyyMMddHHmmss).
type Status struct {
	Name    StatusName `json:"name"`
	Date    string     `json:"date"`
	Message string     `json:"message,omitempty"`
}

// TimeLayout is the catalog timestamp layout used for creation and status dates.
const TimeLayout = "20060102150405"

// Visible reports whether the status is visible to default reads.
func (s StatusName) Visible() bool {
	return s != StatusDeleted && s != StatusRemoved
}
