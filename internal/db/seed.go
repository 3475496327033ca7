package db

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bellcorp/eventboard/internal/domain/user"
	"github.com/bellcorp/eventboard/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Demo fixtures: four users sharing one password and twenty events, the first
// of which has capacity 1 so the full-event path is easy to exercise by hand.

const seedPassword = "123456"

var seedCategories = []string{"Tech", "Business", "Music", "Workshop"}
var seedLocations = []string{"Chennai", "Bangalore", "Hyderabad"}

func Seed(ctx context.Context, pool *pgxpool.Pool) error {
	// wipe in FK order
	for _, table := range []string{"registrations", "events", "users"} {
		if _, err := pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	hash, err := security.HashPassword(seedPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	users := []user.User{
		{ID: uuid.NewString(), Email: "admin@example.com", Name: "Admin", Role: "admin"},
		{ID: uuid.NewString(), Email: "prasanth@example.com", Name: "Prasanth", Role: "user"},
		{ID: uuid.NewString(), Email: "sruthi@example.com", Name: "Sruthi", Role: "user"},
		{ID: uuid.NewString(), Email: "john@example.com", Name: "John Doe", Role: "user"},
	}

	for _, u := range users {
		_, err = pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, name, role, registered_events, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,'{}',$6,$6)`,
			u.ID, u.Email, hash, u.Name, u.Role, now,
		)

		if err != nil {
			return err
		}
	}

	for i := 1; i <= 20; i++ {
		owner := users[rand.Intn(len(users))]

		capacity := 100
		if i == 1 {
			capacity = 1
		}

		_, err = pool.Exec(ctx,
			`INSERT INTO events
			 (id, name, organizer, location, date_time, description, capacity, registered_count, category, created_by, registered_users, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,'{}',$10,$10)`,
			uuid.NewString(),
			fmt.Sprintf("Event %d", i),
			"Bellcorp",
			seedLocations[rand.Intn(len(seedLocations))],
			time.Date(2026, time.May, i, 10, 0, 0, 0, time.UTC),
			fmt.Sprintf("This is the description for Event %d.", i),
			capacity,
			seedCategories[rand.Intn(len(seedCategories))],
			owner.ID,
			now,
		)

		if err != nil {
			return err
		}
	}

	return nil
}
