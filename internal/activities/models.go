package activities

import "time"

// DefaultCategory is assigned to activities auto-created from free-text
// visit input.
const DefaultCategory = "allman"

// Activity is a catalogued activity choice. SortOrder is a pointer because
// older records can lack the field entirely; listings push those last.
type Activity struct {
	ID          string    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Active      bool      `json:"active" bson:"active"`
	Description string    `json:"description" bson:"description"`
	Category    string    `json:"category" bson:"category"`
	SortOrder   *int      `json:"sort_order" bson:"sort_order"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}
