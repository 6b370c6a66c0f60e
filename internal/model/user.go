package model

import "time"

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the user's name, falling back to a friendly default.
func (u *User) DisplayName() string {
	if u == nil || u.Name == "" {
		return "traveler"
	}
	return u.Name
}
