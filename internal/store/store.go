package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"livesale-backend/internal/model"
)

// ErrNotFound is returned by lookups whose target row does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	// InTx runs fn inside one database transaction. Any error returned by fn, a panic,
	// or cancellation of ctx rolls back every statement fn issued.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	UpdateSession(ctx context.Context, s *model.Session) error

	GetSlot(ctx context.Context, sessionID int64, number string) (*model.Slot, error)
	ListSlots(ctx context.Context, sessionID int64) ([]model.Slot, error)

	GetClaim(ctx context.Context, id int64) (*model.Claim, error)
	ListClaims(ctx context.Context, sessionID int64, slotNumber string) ([]model.Claim, error)
	ListComments(ctx context.Context, sessionID int64, limit int) ([]model.Comment, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription, sessionIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptionsForSession(ctx context.Context, sessionID int64) ([]model.PushSubscription, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *gormStore) CreateSession(ctx context.Context, sess *model.Session) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *gormStore) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	var sess model.Session
	if err := s.db.WithContext(ctx).First(&sess, id).Error; err != nil {
		return nil, notFound(err, "get session %d", id)
	}
	return &sess, nil
}

func (s *gormStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	res := s.db.WithContext(ctx).Model(sess).Updates(map[string]any{
		"title":      sess.Title,
		"claim_word": sess.ClaimWord,
		"pass_word":  sess.PassWord,
		"status":     sess.Status,
	})
	if res.Error != nil {
		return fmt.Errorf("update session %d: %w", sess.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) GetSlot(ctx context.Context, sessionID int64, number string) (*model.Slot, error) {
	var slot model.Slot
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND number = ?", sessionID, number).
		First(&slot).Error
	if err != nil {
		return nil, notFound(err, "get slot %s", number)
	}
	return &slot, nil
}

func (s *gormStore) ListSlots(ctx context.Context, sessionID int64) ([]model.Slot, error) {
	var slots []model.Slot
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id ASC").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (s *gormStore) GetClaim(ctx context.Context, id int64) (*model.Claim, error) {
	var claim model.Claim
	if err := s.db.WithContext(ctx).First(&claim, id).Error; err != nil {
		return nil, notFound(err, "get claim %d", id)
	}
	return &claim, nil
}

func (s *gormStore) ListClaims(ctx context.Context, sessionID int64, slotNumber string) ([]model.Claim, error) {
	var claims []model.Claim
	q := s.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if slotNumber != "" {
		q = q.Where("slot_number = ?", slotNumber)
	}
	if err := q.Order("arrived_at ASC, id ASC").Find(&claims).Error; err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

func (s *gormStore) ListComments(ctx context.Context, sessionID int64, limit int) ([]model.Comment, error) {
	if limit <= 0 {
		limit = 100
	}
	var comments []model.Comment
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("commented_at DESC").
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
