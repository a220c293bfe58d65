package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cprtrainer/internal/types"
)

const userColumns = `id, email, COALESCE(name, ''), payment_status, team_id, is_team_owner, COALESCE(voice_preference, ''), created_at, updated_at`

// UserRepository implements types.UserRepository backed by PostgreSQL.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a repository that queries through the given DBTX.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// scanUser scans a single user row.
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PaymentStatus,
		&u.TeamID,
		&u.IsTeamOwner,
		&u.VoicePreference,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertByEmail inserts the user, or updates the existing row with the same
// email. Re-signing up with the same email updates profile fields and team
// assignment instead of failing, which keeps webhook redelivery harmless.
// The returned user reflects the row as stored.
func (r *UserRepository) UpsertByEmail(ctx context.Context, user *types.User) (*types.User, error) {
	query := `
		INSERT INTO users (id, email, name, payment_status, team_id, is_team_owner, voice_preference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), NOW())
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, users.name),
			payment_status = EXCLUDED.payment_status,
			team_id = COALESCE(EXCLUDED.team_id, users.team_id),
			is_team_owner = EXCLUDED.is_team_owner,
			voice_preference = COALESCE(EXCLUDED.voice_preference, users.voice_preference),
			updated_at = NOW()
		RETURNING ` + userColumns

	stored, err := scanUser(r.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		nilIfEmptyString(user.Name),
		user.PaymentStatus,
		user.TeamID,
		user.IsTeamOwner,
		nilIfEmptyString(user.VoicePreference),
		nilIfZeroTime(user.CreatedAt),
	))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user", err)
	}
	return stored, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return user, nil
}

// UpdatePaymentStatus sets the payment status for the user with the given
// email.
func (r *UserRepository) UpdatePaymentStatus(ctx context.Context, email string, status types.UserPaymentStatus) error {
	query := `UPDATE users SET payment_status = $2, updated_at = NOW() WHERE email = $1`

	tag, err := r.db.Exec(ctx, query, email, status)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update user payment status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
