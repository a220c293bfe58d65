package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cprtrainer/internal/types"
)

const teamColumns = `id, name, invite_code, created_at, updated_at`

// TeamRepository implements types.TeamRepository backed by PostgreSQL.
type TeamRepository struct {
	db DBTX
}

// NewTeamRepository creates a repository that queries through the given DBTX.
func NewTeamRepository(db DBTX) *TeamRepository {
	return &TeamRepository{db: db}
}

// scanTeam scans a single team row.
func scanTeam(row pgx.Row) (*types.Team, error) {
	var t types.Team
	err := row.Scan(&t.ID, &t.Name, &t.InviteCode, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new team. Returns ErrCodeConflictInviteCode if the invite
// code is already taken, so callers can regenerate and retry.
func (r *TeamRepository) Create(ctx context.Context, team *types.Team) error {
	query := `
		INSERT INTO teams (id, name, invite_code, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		team.ID,
		team.Name,
		team.InviteCode,
		nilIfZeroTime(team.CreatedAt),
	).Scan(&team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictInviteCode, "invite code already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create team", err)
	}
	return nil
}

// GetByID retrieves a team by its ID.
func (r *TeamRepository) GetByID(ctx context.Context, id string) (*types.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

	team, err := scanTeam(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTeam, "team not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get team", err)
	}
	return team, nil
}

// GetByInviteCode retrieves a team by its invite code.
func (r *TeamRepository) GetByInviteCode(ctx context.Context, code string) (*types.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE invite_code = $1`

	team, err := scanTeam(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTeam, "team not found for invite code", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get team by invite code", err)
	}
	return team, nil
}
