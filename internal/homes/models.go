package homes

import "time"

// MaxDepartments caps the embedded departments list per home.
const MaxDepartments = 20

// Home is a care facility. It owns its departments as an embedded aggregate,
// not a separate collection: department mutations rewrite the whole document
// and are last-writer-wins by design.
type Home struct {
	ID          string       `json:"id" bson:"_id"`
	Name        string       `json:"name" bson:"name"`
	Active      bool         `json:"active" bson:"active"`
	Address     string       `json:"address" bson:"address"`
	Description string       `json:"description" bson:"description"`
	CreatedAt   time.Time    `json:"created_at" bson:"created_at"`
	Departments []Department `json:"departments" bson:"departments"`
}

// Department lives inside its home. The id embeds the home id so it stays
// unique across homes; the active flag soft-deletes without invalidating
// historical visit references.
type Department struct {
	ID        string    `json:"id" bson:"id"`
	Slug      string    `json:"slug" bson:"slug"`
	Name      string    `json:"name" bson:"name"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// ActiveDepartment reports whether id references an active department.
func (h *Home) ActiveDepartment(id string) bool {
	for _, d := range h.Departments {
		if d.ID == id && d.Active {
			return true
		}
	}
	return false
}
