package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"livesale-backend/internal/model"
)

// UpsertSubscription creates or replaces a push subscription and the set of sessions it
// follows.
func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription, sessionIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return fmt.Errorf("upsert subscription: %w", err)
		}

		var sessions []*model.Session
		if len(sessionIDs) > 0 {
			if err := tx.Find(&sessions, sessionIDs).Error; err != nil {
				return fmt.Errorf("find sessions: %w", err)
			}
		}

		if err := tx.Model(sub).Association("Sessions").Replace(sessions); err != nil {
			return fmt.Errorf("replace subscribed sessions: %w", err)
		}
		return nil
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Sessions").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound(err, "get subscription")
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(&sub).Association("Sessions").Clear(); err != nil {
			return fmt.Errorf("clear subscribed sessions: %w", err)
		}
		if err := tx.Delete(&sub).Error; err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		return nil
	})
}

func (s *gormStore) ListSubscriptionsForSession(ctx context.Context, sessionID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_session_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.session_id = ?", sessionID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for session %d: %w", sessionID, err)
	}
	return subs, nil
}
