package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/council-autonomy-gate/internal/domain"
)

// GetUserByUsername — поиск оператора для выдачи токена.
// (nil, nil) при отсутствии: неверный логин не отличается от несуществующего
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
	          FROM users WHERE username = $1`

	u := &domain.User{}
	var scopes []byte
	err := s.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &scopes, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to fetch user: %w", err)
	}

	if err := json.Unmarshal(scopes, &u.Scopes); err != nil {
		return nil, fmt.Errorf("postgres: bad scopes for user %s: %w", u.ID, err)
	}
	return u, nil
}
