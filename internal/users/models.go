package users

import "time"

type Roles struct {
	Admin bool `json:"admin" bson:"admin"`
}

// User is one known caller, keyed by the identity provider's subject id.
// Email is kept lowercased; it doubles as the legacy owner key on visits
// registered before subject ids were captured.
type User struct {
	ID          string    `json:"id" bson:"_id"`
	Email       string    `json:"email" bson:"email"`
	DisplayName string    `json:"display_name" bson:"display_name"`
	Roles       Roles     `json:"roles" bson:"roles"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	LastLoginAt time.Time `json:"last_login_at" bson:"last_login_at"`
}
