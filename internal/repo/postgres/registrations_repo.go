package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/bellcorp/eventboard/internal/domain/event"
	"github.com/bellcorp/eventboard/internal/domain/registration"
	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RegistrationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RegistrationsRepo {
	return &RegistrationsRepo{
		pool: pool,
		prom: prom,
	}
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (repo *RegistrationsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Register takes a slot for userID on eventID. Four representations move
// together inside one transaction: the event's counter, the event's member
// array, the registrations row and the user's reverse list. The capacity
// check is not a read-then-write; the guarded UPDATE in registerTx is what
// keeps two concurrent registrants from overselling the event.
func (repo *RegistrationsRepo) Register(ctx context.Context, eventID, userID string) (reg registration.Registration, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return
	}

	defer func() { _ = tx.Rollback(ctx) }()

	reg, err = repo.registerTx(ctx, tx, eventID, userID)

	if err != nil {
		return
	}

	err = tx.Commit(ctx)

	return
}

func (repo *RegistrationsRepo) registerTx(ctx context.Context, tx pgx.Tx, eventID, userID string) (reg registration.Registration, err error) {
	// 1) event must exist, and must not have started yet
	var dateTime time.Time

	err = repo.observe("registrations.register.load_event", func() error {
		return tx.QueryRow(ctx,
			`SELECT date_time FROM events WHERE id = $1`, eventID,
		).Scan(&dateTime)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrNotFound
		}
		return
	}

	if dateTime.Before(time.Now()) {
		err = registration.ErrEventEnded
		return
	}

	// 2) duplicate pre-check for a clean error; the unique constraint below
	// still backstops the race
	var exists bool

	err = repo.observe("registrations.register.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM registrations
			WHERE user_id = $1 AND event_id = $2
		)`, userID, eventID).Scan(&exists)
	})

	if err != nil {
		return
	}

	if exists {
		err = registration.ErrAlreadyRegistered
		return
	}

	// 3) the conditional increment. Capacity is evaluated by the store at
	// update time; zero rows matched means the event is full.
	var tag pgconn.CommandTag

	err = repo.observe("registrations.register.reserve_slot", func() error {
		var execErr error
		tag, execErr = tx.Exec(ctx,
			`UPDATE events
			 SET registered_count = registered_count + 1,
			     registered_users = array_append(registered_users, $2),
			     updated_at = NOW()
			 WHERE id = $1 AND registered_count < capacity`,
			eventID, userID,
		)
		return execErr
	})

	if err != nil {
		return
	}

	if tag.RowsAffected() == 0 {
		err = registration.ErrEventFull
		return
	}

	// 4) the registration row itself
	reg = registration.New(userID, eventID)

	err = repo.observe("registrations.register.insert", func() error {
		_, execErr := tx.Exec(ctx,
			`INSERT INTO registrations (id, user_id, event_id, created_at)
			 VALUES ($1,$2,$3,$4)`,
			reg.ID, reg.UserID, reg.EventID, reg.CreatedAt,
		)
		return execErr
	})

	if err != nil {
		// concurrent duplicate that slipped past the pre-check
		if IsUniqueViolation(err) {
			err = registration.ErrAlreadyRegistered
		}
		return
	}

	// 5) reverse list on the user; idempotent set-add
	err = repo.observe("registrations.register.user_list", func() error {
		_, execErr := tx.Exec(ctx,
			`UPDATE users
			 SET registered_events = array_append(registered_events, $2),
			     updated_at = NOW()
			 WHERE id = $1 AND NOT ($2 = ANY(registered_events))`,
			userID, eventID,
		)
		return execErr
	})

	return
}

// Cancel releases userID's slot on eventID inside one transaction. The
// decrement is guarded by registered_count > 0 so the counter can never go
// negative; a guard miss is not an error because the registration row proved
// a slot was held.
func (repo *RegistrationsRepo) Cancel(ctx context.Context, eventID, userID string) (err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return
	}

	defer func() { _ = tx.Rollback(ctx) }()

	var regID string

	err = repo.observe("registrations.cancel.load", func() error {
		return tx.QueryRow(ctx,
			`SELECT id FROM registrations WHERE user_id = $1 AND event_id = $2`,
			userID, eventID,
		).Scan(&regID)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = registration.ErrNotFound
		}
		return
	}

	err = repo.observe("registrations.cancel.delete", func() error {
		_, execErr := tx.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, regID)
		return execErr
	})

	if err != nil {
		return
	}

	err = repo.observe("registrations.cancel.release_slot", func() error {
		_, execErr := tx.Exec(ctx,
			`UPDATE events
			 SET registered_count = registered_count - 1,
			     registered_users = array_remove(registered_users, $2),
			     updated_at = NOW()
			 WHERE id = $1 AND registered_count > 0`,
			eventID, userID,
		)
		return execErr
	})

	if err != nil {
		return
	}

	err = repo.observe("registrations.cancel.user_list", func() error {
		_, execErr := tx.Exec(ctx,
			`UPDATE users
			 SET registered_events = array_remove(registered_events, $2),
			     updated_at = NOW()
			 WHERE id = $1`,
			userID, eventID,
		)
		return execErr
	})

	if err != nil {
		return
	}

	err = tx.Commit(ctx)

	return
}

// ListMine returns the caller's registrations, newest first, each joined with
// its event. Read-only, so no transaction.
func (repo *RegistrationsRepo) ListMine(ctx context.Context, userID string) (regs []registration.WithEvent, err error) {
	var rows pgx.Rows

	err = repo.observe("registrations.list_mine", func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx,
			`SELECT r.id, r.user_id, r.event_id, r.created_at,
			        e.id, e.name, e.organizer, e.location, e.date_time, e.description,
			        e.capacity, e.registered_count, e.category, e.created_by,
			        e.registered_users, e.created_at, e.updated_at
			 FROM registrations r
			 JOIN events e ON e.id = r.event_id
			 WHERE r.user_id = $1
			 ORDER BY r.created_at DESC, r.id DESC`,
			userID,
		)
		return qerr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	regs = make([]registration.WithEvent, 0)

	for rows.Next() {
		var r registration.WithEvent
		e := &r.Event

		scanErr := rows.Scan(
			&r.ID, &r.UserID, &r.EventID, &r.CreatedAt,
			&e.ID, &e.Name, &e.Organizer, &e.Location, &e.DateTime, &e.Description,
			&e.Capacity, &e.RegisteredCount, &e.Category, &e.CreatedBy,
			&e.RegisteredUsers, &e.CreatedAt, &e.UpdatedAt,
		)

		if scanErr != nil {
			err = scanErr
			return
		}
		regs = append(regs, r)
	}

	err = rows.Err()

	return
}

// ListForEvent returns an event's registrations to its owner, newest first,
// each joined with the registrant's public identity (name and email only).
func (repo *RegistrationsRepo) ListForEvent(ctx context.Context, eventID, callerID string) (regs []registration.WithAttendee, err error) {
	var createdBy string

	err = repo.observe("registrations.list_for_event.owner_check", func() error {
		return repo.pool.QueryRow(ctx,
			`SELECT created_by FROM events WHERE id = $1`, eventID,
		).Scan(&createdBy)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrNotFound
		}
		return
	}

	if createdBy != callerID {
		err = registration.ErrNotOwner
		return
	}

	var rows pgx.Rows

	err = repo.observe("registrations.list_for_event", func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx,
			`SELECT r.id, r.user_id, r.event_id, r.created_at, u.name, u.email
			 FROM registrations r
			 JOIN users u ON u.id = r.user_id
			 WHERE r.event_id = $1
			 ORDER BY r.created_at DESC, r.id DESC`,
			eventID,
		)
		return qerr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	regs = make([]registration.WithAttendee, 0)

	for rows.Next() {
		var r registration.WithAttendee

		scanErr := rows.Scan(&r.ID, &r.UserID, &r.EventID, &r.CreatedAt, &r.User.Name, &r.User.Email)

		if scanErr != nil {
			err = scanErr
			return
		}
		regs = append(regs, r)
	}

	err = rows.Err()

	return
}
