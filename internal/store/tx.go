package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"livesale-backend/internal/model"
)

// Tx is the set of statements available inside InTx. Slot counts may only be changed
// through a slot obtained from LockSlot in the same Tx.
type Tx interface {
	// LockSession reads the session, holding a shared row lock (or an exclusive one)
	// until the transaction ends.
	LockSession(id int64, exclusive bool) (*model.Session, error)

	// InsertComment stores c unless a comment with the same platform and external id
	// exists. It reports whether a row was inserted.
	InsertComment(c *model.Comment) (bool, error)

	// LockSlot reads the slot holding an exclusive row lock. It returns nil, nil when the
	// slot does not exist.
	LockSlot(sessionID int64, number string) (*model.Slot, error)
	CreateSlot(s *model.Slot) error
	SaveSlotCount(s *model.Slot) error

	FindClaimByKey(key string) (*model.Claim, error)
	FindActorClaim(sessionID int64, number, actorID string, statuses ...model.ClaimStatus) (*model.Claim, error)
	LockClaim(id int64) (*model.Claim, error)
	CreateClaim(c *model.Claim) error
	SaveClaim(c *model.Claim) error

	MaxWaitlistPosition(sessionID int64, number string) (int, error)
	FirstWaitlisted(sessionID int64, number string) (*model.Claim, error)
	ListUnmatched(sessionID int64, number string) ([]model.Claim, error)
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockSession(id int64, exclusive bool) (*model.Session, error) {
	strength := "SHARE"
	if exclusive {
		strength = clause.LockingStrengthUpdate
	}
	var sess model.Session
	if err := t.db.Clauses(clause.Locking{Strength: strength}).First(&sess, id).Error; err != nil {
		return nil, notFound(err, "lock session %d", id)
	}
	return &sess, nil
}

func (t *gormTx) InsertComment(c *model.Comment) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(c)
	if res.Error != nil {
		return false, fmt.Errorf("insert comment: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (t *gormTx) LockSlot(sessionID int64, number string) (*model.Slot, error) {
	var slot model.Slot
	err := t.db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("session_id = ? AND number = ?", sessionID, number).
		First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock slot %s: %w", number, err)
	}
	return &slot, nil
}

func (t *gormTx) CreateSlot(s *model.Slot) error {
	if err := t.db.Create(s).Error; err != nil {
		return classifyWriteError(fmt.Errorf("create slot %s: %w", s.Number, err))
	}
	return nil
}

func (t *gormTx) SaveSlotCount(s *model.Slot) error {
	err := t.db.Model(s).Updates(map[string]any{
		"claimed_count": s.ClaimedCount,
		"status":        s.Status,
	}).Error
	if err != nil {
		return fmt.Errorf("update slot %s: %w", s.Number, err)
	}
	return nil
}

func (t *gormTx) FindClaimByKey(key string) (*model.Claim, error) {
	var claim model.Claim
	err := t.db.Where("idempotency_key = ?", key).First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find claim by idempotency key: %w", err)
	}
	return &claim, nil
}

func (t *gormTx) FindActorClaim(sessionID int64, number, actorID string, statuses ...model.ClaimStatus) (*model.Claim, error) {
	var claim model.Claim
	err := t.db.
		Where("session_id = ? AND slot_number = ? AND actor_id = ? AND status IN ?", sessionID, number, actorID, statuses).
		Order("id ASC").
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find actor claim: %w", err)
	}
	return &claim, nil
}

func (t *gormTx) LockClaim(id int64) (*model.Claim, error) {
	var claim model.Claim
	if err := t.db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).First(&claim, id).Error; err != nil {
		return nil, notFound(err, "lock claim %d", id)
	}
	return &claim, nil
}

func (t *gormTx) CreateClaim(c *model.Claim) error {
	if err := t.db.Create(c).Error; err != nil {
		return classifyWriteError(fmt.Errorf("create claim: %w", err))
	}
	return nil
}

func (t *gormTx) SaveClaim(c *model.Claim) error {
	if err := t.db.Save(c).Error; err != nil {
		return classifyWriteError(fmt.Errorf("update claim %d: %w", c.ID, err))
	}
	return nil
}

func (t *gormTx) MaxWaitlistPosition(sessionID int64, number string) (int, error) {
	var maxPos int
	err := t.db.Model(&model.Claim{}).
		Select("COALESCE(MAX(waitlist_position), 0)").
		Where("session_id = ? AND slot_number = ? AND status = ?", sessionID, number, model.ClaimStatusWaitlist).
		Scan(&maxPos).Error
	if err != nil {
		return 0, fmt.Errorf("max waitlist position: %w", err)
	}
	return maxPos, nil
}

func (t *gormTx) FirstWaitlisted(sessionID int64, number string) (*model.Claim, error) {
	var claim model.Claim
	err := t.db.
		Where("session_id = ? AND slot_number = ? AND status = ?", sessionID, number, model.ClaimStatusWaitlist).
		Order("waitlist_position ASC, id ASC").
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first waitlisted: %w", err)
	}
	return &claim, nil
}

func (t *gormTx) ListUnmatched(sessionID int64, number string) ([]model.Claim, error) {
	var claims []model.Claim
	err := t.db.
		Where("session_id = ? AND slot_number = ? AND status = ?", sessionID, number, model.ClaimStatusUnmatched).
		Order("arrived_at ASC, id ASC").
		Find(&claims).Error
	if err != nil {
		return nil, fmt.Errorf("list unmatched: %w", err)
	}
	return claims, nil
}
