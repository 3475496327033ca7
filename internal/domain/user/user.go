package user

import "time"

type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"` // never expose hash in JSON
	Name             string    `json:"name"`
	Role             string    `json:"role"`
	RegisteredEvents []string  `json:"registeredEvents"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
