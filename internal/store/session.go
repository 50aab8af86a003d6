package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dukerupert/classbook/internal/model"
)

const sessionTTL = 30 * 24 * time.Hour

type SessionStore struct {
	db DBTX
}

func NewSessionStore(db DBTX) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(s scanner) (*model.Session, error) {
	var sess model.Session
	var tenantID sql.NullInt64
	if err := s.Scan(&sess.ID, &sess.Token, &sess.IdentityID, &tenantID, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		return nil, err
	}
	sess.TenantID = int64Ptr(tenantID)
	return &sess, nil
}

const sessionCols = `id, token, identity_id, tenant_id, expires_at, created_at`

// Create generates a new session with a crypto-random token.
func (s *SessionStore) Create(ctx context.Context, identityID int64, tenantID *int64) (*model.Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, identity_id, tenant_id, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		token, identityID, nullInt64(tenantID), now.Add(sessionTTL), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetByToken returns the session for the given token, or nil if expired or not found.
func (s *SessionStore) GetByToken(ctx context.Context, token string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC(),
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by token: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
