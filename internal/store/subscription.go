package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/classbook/internal/model"
)

// SubscriptionStore is append-only: rows are inserted, never updated.
type SubscriptionStore struct {
	db DBTX
}

func NewSubscriptionStore(db DBTX) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(s scanner) (*model.Subscription, error) {
	var sub model.Subscription
	var endsAt sql.NullTime
	if err := s.Scan(&sub.ID, &sub.TenantID, &sub.Plan, &sub.Status, &sub.StartsAt, &endsAt, &sub.CreatedAt); err != nil {
		return nil, err
	}
	if endsAt.Valid {
		sub.EndsAt = &endsAt.Time
	}
	return &sub, nil
}

const subscriptionCols = `id, tenant_id, plan, status, starts_at, ends_at, created_at`

func (s *SubscriptionStore) Create(ctx context.Context, tenantID int64, plan, status string, startsAt time.Time, endsAt *time.Time) (*model.Subscription, error) {
	var ends sql.NullTime
	if endsAt != nil {
		ends = sql.NullTime{Time: endsAt.UTC(), Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (tenant_id, plan, status, starts_at, ends_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tenantID, plan, status, startsAt.UTC(), ends, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionCols+` FROM subscriptions WHERE id = ?`, id)
	return scanSubscription(row)
}

// Latest returns the most recently created subscription of the tenant.
func (s *SubscriptionStore) Latest(ctx context.Context, tenantID int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE tenant_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		tenantID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) CountByTenant(ctx context.Context, tenantID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE tenant_id = ?`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}
