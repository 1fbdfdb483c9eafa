package models

// ClassDefinition is the catalog entry a session is scheduled from.
type ClassDefinition struct {
	ID                  string       `db:"id" json:"id"`
	Title               string       `db:"title" json:"title"`
	DefaultInstructorID *string      `db:"default_instructor_id" json:"default_instructor_id,omitempty"`
	DefaultCapacity     int          `db:"default_capacity" json:"default_capacity"`
	LocationType        LocationType `db:"location_type" json:"location_type"`
}
