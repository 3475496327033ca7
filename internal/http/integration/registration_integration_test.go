package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bellcorp/eventboard/internal/config"
	"github.com/bellcorp/eventboard/internal/db"
	"github.com/bellcorp/eventboard/internal/domain/registration"
	apphttp "github.com/bellcorp/eventboard/internal/http"
	"github.com/bellcorp/eventboard/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func testConfig() config.Config {
	return config.Config{
		Env:                 "test",
		Port:                0, // not used in tests
		JWTSecret:           "test-secret-key",
		JWTAccessTTLMinutes: 60,
		ClientURL:           "http://localhost:5173",
	}
}

type apiErrorResponse struct {
	Error struct {
		Code      string          `json:"code"`
		Message   string          `json:"message"`
		RequestID string          `json:"requestId"`
		Details   json.RawMessage `json:"details"`
	} `json:"error"`
}

// setupTestRouter needs a reachable postgres; set TEST_DB_DSN to run these.
func setupTestRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set; skipping database integration tests")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to create pgx pool: %v", err)
	}

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	router := apphttp.NewRouter(logger, pool, nil, testConfig(), nil)

	return router, pool
}

// reset db after every test; registrations depend on events and users

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `TRUNCATE registrations, events, users CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// signUp registers a fresh user through the API and returns its token and id.
func signUp(t *testing.T, r *gin.Engine, email string) (token, userID string) {
	t.Helper()

	body := fmt.Sprintf(`{"email": %q, "password": "123456", "name": "Test User"}`, email)
	w := doJSON(t, r, http.MethodPost, "/api/auth/signup", "", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("signup failed: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("signup response: %v", err)
	}

	return resp.AccessToken, resp.User.ID
}

func createEvent(t *testing.T, r *gin.Engine, token string, capacity int) string {
	t.Helper()

	body := fmt.Sprintf(`{
		"name": "Integration Event",
		"organizer": "Bellcorp",
		"location": "Chennai",
		"dateTime": %q,
		"description": "integration test event",
		"capacity": %d,
		"category": "Technology"
	}`, time.Now().Add(48*time.Hour).UTC().Format(time.RFC3339), capacity)

	w := doJSON(t, r, http.MethodPost, "/api/events", token, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("create event failed: %d %s", w.Code, w.Body.String())
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("create event response: %v", err)
	}

	return created.ID
}

func TestRegistrationLifecycle(t *testing.T) {
	r, pool := setupTestRouter(t)
	defer pool.Close()
	resetDB(t, pool)

	ownerToken, _ := signUp(t, r, "owner@example.com")
	attendeeToken, attendeeID := signUp(t, r, "attendee@example.com")

	eventID := createEvent(t, r, ownerToken, 5)

	// register
	w := doJSON(t, r, http.MethodPost, "/api/registrations/"+eventID, attendeeToken, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
	}

	// second attempt conflicts
	w = doJSON(t, r, http.MethodPost, "/api/registrations/"+eventID, attendeeToken, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: got %d %s", w.Code, w.Body.String())
	}
	var dup apiErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &dup); err != nil {
		t.Fatalf("conflict body: %v", err)
	}
	if dup.Error.Code != "already_registered" {
		t.Fatalf("got conflict code %q", dup.Error.Code)
	}

	// all four views agree
	assertLedgerState(t, pool, eventID, attendeeID, 1)

	// my registrations embeds the event
	w = doJSON(t, r, http.MethodGet, "/api/registrations/me", attendeeToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list mine failed: %d %s", w.Code, w.Body.String())
	}
	var mine struct {
		Count         int `json:"count"`
		Registrations []struct {
			EventID string `json:"eventId"`
			Event   struct {
				Name string `json:"name"`
			} `json:"event"`
		} `json:"registrations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &mine); err != nil {
		t.Fatalf("list mine body: %v", err)
	}
	if mine.Count != 1 || mine.Registrations[0].EventID != eventID {
		t.Fatalf("unexpected list mine payload: %s", w.Body.String())
	}
	if mine.Registrations[0].Event.Name == "" {
		t.Fatalf("expected embedded event details: %s", w.Body.String())
	}

	// owner sees the attendee; the attendee does not get the owner view
	w = doJSON(t, r, http.MethodGet, "/api/registrations/"+eventID+"/registrations", ownerToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("owner list failed: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, "/api/registrations/"+eventID+"/registrations", attendeeToken, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-owner list: got %d %s", w.Code, w.Body.String())
	}

	// cancel releases the slot everywhere
	w = doJSON(t, r, http.MethodDelete, "/api/registrations/"+eventID, attendeeToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d %s", w.Code, w.Body.String())
	}
	assertLedgerState(t, pool, eventID, attendeeID, 0)

	// cancelling again is a 404
	w = doJSON(t, r, http.MethodDelete, "/api/registrations/"+eventID, attendeeToken, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second cancel: got %d %s", w.Code, w.Body.String())
	}
}

// assertLedgerState cross-checks the denormalized views straight from the db.
func assertLedgerState(t *testing.T, pool *pgxpool.Pool, eventID, userID string, want int) {
	t.Helper()
	ctx := context.Background()

	var count int
	var registeredUsers []string
	err := pool.QueryRow(ctx,
		`SELECT registered_count, registered_users FROM events WHERE id = $1`, eventID,
	).Scan(&count, &registeredUsers)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}

	var rows int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1`, eventID,
	).Scan(&rows); err != nil {
		t.Fatalf("count registrations: %v", err)
	}

	var userEvents []string
	if err := pool.QueryRow(ctx,
		`SELECT registered_events FROM users WHERE id = $1`, userID,
	).Scan(&userEvents); err != nil {
		t.Fatalf("read user: %v", err)
	}

	if count != want || len(registeredUsers) != want || rows != want || len(userEvents) != want {
		t.Fatalf("ledger views disagree: count=%d users=%d rows=%d reverse=%d want=%d",
			count, len(registeredUsers), rows, len(userEvents), want)
	}
}

func TestRegistration_CapacityGuardUnderContention(t *testing.T) {
	r, pool := setupTestRouter(t)
	defer pool.Close()
	resetDB(t, pool)

	ownerToken, _ := signUp(t, r, "owner@example.com")
	eventID := createEvent(t, r, ownerToken, 3)

	// keep signups below the auth rate limiter's window
	const contenders = 8

	userIDs := make([]string, contenders)
	for i := range userIDs {
		_, userIDs[i] = signUp(t, r, fmt.Sprintf("u%d@example.com", i))
	}

	// hit the repo directly so every attempt races on the same conditional
	// update rather than being serialized by the test's request loop
	repo := postgres.NewRegistrationsRepo(pool, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, full := 0, 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := repo.Register(context.Background(), eventID, userIDs[i])

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, registration.ErrEventFull):
				full++
			default:
				t.Errorf("unexpected register error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("expected exactly 3 winners, got %d (full=%d)", succeeded, full)
	}

	var count int
	if err := pool.QueryRow(context.Background(),
		`SELECT registered_count FROM events WHERE id = $1`, eventID,
	).Scan(&count); err != nil {
		t.Fatalf("read count: %v", err)
	}
	if count != 3 {
		t.Fatalf("registered_count overshot capacity: %d", count)
	}
}

func TestEventsList_PaginationOverHTTP(t *testing.T) {
	r, pool := setupTestRouter(t)
	defer pool.Close()
	resetDB(t, pool)

	ownerToken, _ := signUp(t, r, "owner@example.com")
	for i := 0; i < 8; i++ {
		createEvent(t, r, ownerToken, 10)
	}

	w := doJSON(t, r, http.MethodGet, "/api/events?page=2&limit=6", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		Events      []json.RawMessage `json:"events"`
		CurrentPage int               `json:"currentPage"`
		TotalPages  int               `json:"totalPages"`
		TotalEvents int               `json:"totalEvents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("list body: %v", err)
	}

	if resp.TotalEvents != 8 || resp.TotalPages != 2 || resp.CurrentPage != 2 {
		t.Fatalf("pagination metadata wrong: %+v", resp)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("expected 2 events on the final page, got %d", len(resp.Events))
	}
}
