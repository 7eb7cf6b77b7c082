package models

// User is the identity of the local session.
type User struct {
	ID    ID       `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}
