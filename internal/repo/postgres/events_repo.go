package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bellcorp/eventboard/internal/domain/event"
	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, name, organizer, location, date_time, description,
	capacity, registered_count, category, created_by, registered_users,
	created_at, updated_at`

type EventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{pool: pool, prom: prom}
}

func (r *EventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanEvent(row pgx.Row, e *event.Event) error {
	return row.Scan(
		&e.ID, &e.Name, &e.Organizer, &e.Location, &e.DateTime, &e.Description,
		&e.Capacity, &e.RegisteredCount, &e.Category, &e.CreatedBy, &e.RegisteredUsers,
		&e.CreatedAt, &e.UpdatedAt,
	)
}

func (r *EventsRepo) Create(ctx context.Context, req event.CreateEventRequest, createdBy string) (event.Event, error) {
	e := event.NewFromCreateRequest(req, createdBy)

	err := r.observe("events.create", func() error {
		_, execErr := r.pool.Exec(ctx,
			`INSERT INTO events
			 (id, name, organizer, location, date_time, description, capacity,
			  registered_count, category, created_by, registered_users, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			e.ID, e.Name, e.Organizer, e.Location, e.DateTime, e.Description, e.Capacity,
			e.RegisteredCount, e.Category, e.CreatedBy, e.RegisteredUsers, e.CreatedAt, e.UpdatedAt,
		)
		return execErr
	})

	if err != nil {
		return event.Event{}, err
	}

	return e, nil
}

// List returns one page of events plus the unpaginated total, so the handler
// can derive totalPages. The date filter restricts to the 24h window starting
// at midnight of the given day.
func (r *EventsRepo) List(ctx context.Context, f event.ListEventsFilter) ([]event.Event, int, error) {
	baseQuery := `SELECT ` + eventColumns + `, COUNT(*) OVER() AS total FROM events`

	var conds []string
	var args []interface{}

	argsPosition := 1

	if f.Search != nil {
		// case-insensitive substring match on name; escape the pattern
		// metacharacters so the term matches literally
		conds = append(conds, fmt.Sprintf("name ILIKE '%%' || $%d || '%%'", argsPosition))
		args = append(args, escapeLikePattern(*f.Search))
		argsPosition++
	}

	if f.Category != nil {
		conds = append(conds, fmt.Sprintf("category = $%d", argsPosition))
		args = append(args, *f.Category)
		argsPosition++
	}

	if f.Location != nil {
		conds = append(conds, fmt.Sprintf("location = $%d", argsPosition))
		args = append(args, *f.Location)
		argsPosition++
	}

	if f.Date != nil {
		// f.Date already carries midnight in the caller's zone
		conds = append(conds, fmt.Sprintf("date_time >= $%d AND date_time < $%d", argsPosition, argsPosition+1))
		args = append(args, *f.Date, f.Date.Add(24*time.Hour))
		argsPosition += 2
	}

	query := baseQuery

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// stable ordering for pagination
	query += fmt.Sprintf(" ORDER BY date_time ASC, id ASC LIMIT $%d OFFSET $%d", argsPosition, argsPosition+1)

	args = append(args, f.PageSize, f.Offset())

	var rows pgx.Rows
	err := r.observe("events.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, query, args...)
		return qerr
	})

	if err != nil {
		return nil, 0, err
	}

	defer rows.Close()

	output := make([]event.Event, 0, f.PageSize)
	total := 0

	for rows.Next() {
		var e event.Event
		var t int

		err = rows.Scan(
			&e.ID, &e.Name, &e.Organizer, &e.Location, &e.DateTime, &e.Description,
			&e.Capacity, &e.RegisteredCount, &e.Category, &e.CreatedBy, &e.RegisteredUsers,
			&e.CreatedAt, &e.UpdatedAt, &t,
		)

		if err != nil {
			return nil, 0, err
		}

		total = t
		output = append(output, e)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	// A page past the end has no rows, so COUNT OVER() never reached us.
	if len(output) == 0 {
		countQuery := `SELECT COUNT(*) FROM events`
		countArgs := args[:len(args)-2]
		if len(conds) > 0 {
			countQuery += " WHERE " + strings.Join(conds, " AND ")
		}

		err = r.observe("events.list.count", func() error {
			return r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total)
		})
		if err != nil {
			return nil, 0, err
		}
	}

	return output, total, nil
}

func (r *EventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	var e event.Event

	err := r.observe("events.get_by_id", func() error {
		return scanEvent(r.pool.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1`, id), &e)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, err
	}

	return e, nil
}

// Update loads the row under a lock, merges the patch in Go and writes the
// result back, so absent fields keep their stored values.
func (r *EventsRepo) Update(ctx context.Context, id string, req event.UpdateEventRequest) (updated event.Event, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return
	}

	defer func() { _ = tx.Rollback(ctx) }()

	var e event.Event

	err = r.observe("events.update.load", func() error {
		return scanEvent(tx.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id), &e)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = event.ErrNotFound
		}
		return
	}

	e.ApplyUpdate(req)

	if e.Capacity < e.RegisteredCount {
		err = event.ErrCapacityBelowRegistered
		return
	}

	err = r.observe("events.update.write", func() error {
		_, execErr := tx.Exec(ctx,
			`UPDATE events
			 SET name = $2, organizer = $3, location = $4, date_time = $5,
			     description = $6, capacity = $7, category = $8, updated_at = $9
			 WHERE id = $1`,
			e.ID, e.Name, e.Organizer, e.Location, e.DateTime,
			e.Description, e.Capacity, e.Category, e.UpdatedAt,
		)
		return execErr
	})

	if err != nil {
		// the table CHECK backstops the pre-check above
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			err = event.ErrCapacityBelowRegistered
		}
		return
	}

	err = tx.Commit(ctx)

	if err != nil {
		return
	}

	updated = e
	return
}

func (r *EventsRepo) Delete(ctx context.Context, id string) error {
	var tag int64

	err := r.observe("events.delete", func() error {
		res, execErr := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)

		if execErr != nil {
			return execErr
		}

		tag = res.RowsAffected()
		return nil
	})

	if err != nil {
		return err
	}

	// if no rows were deleted as a result return a not found error
	if tag == 0 {
		return event.ErrNotFound
	}

	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLikePattern neutralizes LIKE metacharacters so a search term such as
// "100%" matches the literal string instead of acting as a wildcard.
func escapeLikePattern(s string) string {
	return likeEscaper.Replace(s)
}
