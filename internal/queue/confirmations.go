// Package queue moves registration confirmations from the API to the worker
// over a Redis list. Enqueue happens after the registration transaction
// commits; a lost payload costs a confirmation message, never a slot.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/bellcorp/eventboard/internal/queue/redisclient"
	"github.com/redis/go-redis/v9"
)

const confirmationsKey = "eventboard:confirmations"

var ErrInvalidPayload = errors.New("invalid confirmation payload")

// ErrEmpty reports that no payload was available within the blocking window.
var ErrEmpty = errors.New("queue empty")

type Confirmation struct {
	RegistrationID string    `json:"registrationId"`
	EventID        string    `json:"eventId"`
	EventName      string    `json:"eventName"`
	UserID         string    `json:"userId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	RequestedAt    time.Time `json:"requestedAt"`
}

func (c Confirmation) validate() error {
	if c.RegistrationID == "" || c.EventID == "" || c.UserID == "" {
		return ErrInvalidPayload
	}
	return nil
}

type Confirmations struct {
	rdb  *redisclient.Client
	prom *observability.Prom
}

func NewConfirmations(rdb *redisclient.Client, prom *observability.Prom) *Confirmations {
	return &Confirmations{rdb: rdb, prom: prom}
}

func (q *Confirmations) Enqueue(ctx context.Context, c Confirmation) error {
	if err := c.validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(c)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	err = q.rdb.Raw().LPush(ctx, confirmationsKey, raw).Err()

	if q.prom != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		q.prom.QueuePublishTotal.WithLabelValues(result).Inc()
	}

	return err
}

// Dequeue blocks up to timeout for the next payload. ErrEmpty means nothing
// arrived; the caller just polls again.
func (q *Confirmations) Dequeue(ctx context.Context, timeout time.Duration) (Confirmation, error) {
	res, err := q.rdb.Raw().BRPop(ctx, timeout, confirmationsKey).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Confirmation{}, ErrEmpty
		}
		return Confirmation{}, err
	}

	// BRPOP returns [key, value]
	if len(res) != 2 {
		return Confirmation{}, ErrInvalidPayload
	}

	var c Confirmation

	if err := json.Unmarshal([]byte(res[1]), &c); err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := c.validate(); err != nil {
		return Confirmation{}, err
	}

	return c, nil
}
