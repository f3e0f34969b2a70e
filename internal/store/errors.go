package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicateIdempotencyKey means a claim with the same idempotency key exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrDuplicateActiveClaim means the actor already holds an active claim on the slot.
	ErrDuplicateActiveClaim = errors.New("duplicate active claim")
	// ErrSlotExists means the slot number is already registered in the session.
	ErrSlotExists = errors.New("slot already exists")
	// ErrUniqueViolation is any other uniqueness failure.
	ErrUniqueViolation = errors.New("unique constraint violation")
)

// uniqueTargets maps index names (postgres) and column lists (sqlite) to sentinels.
var uniqueTargets = []struct {
	markers []string
	err     error
}{
	{markers: []string{"idx_claims_idempotency_key", "claims.idempotency_key"}, err: ErrDuplicateIdempotencyKey},
	{markers: []string{"idx_claims_active_actor", "claims.actor_id"}, err: ErrDuplicateActiveClaim},
	{markers: []string{"idx_slots_session_number", "slots.number"}, err: ErrSlotExists},
}

// classifyWriteError converts storage-level unique violations into sentinel errors that
// callers can match with errors.Is. Other errors pass through unchanged.
func classifyWriteError(err error) error {
	detail, ok := uniqueViolationDetail(err)
	if !ok {
		return err
	}
	for _, target := range uniqueTargets {
		for _, m := range target.markers {
			if strings.Contains(detail, m) {
				return fmt.Errorf("%w: %v", target.err, err)
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
}

func uniqueViolationDetail(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return liteErr.Error(), true
	}
	return "", false
}
