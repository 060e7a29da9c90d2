package companions

import "time"

// Companion is a catalogued staff member or volunteer who accompanies
// residents on outings.
type Companion struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
