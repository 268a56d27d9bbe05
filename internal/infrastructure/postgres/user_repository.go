package postgres

import (
	"context"
	"database/sql"
	"errors"

	"famledger/internal/models"
)

// UserRepository implements models.UserRepository for PostgreSQL
type UserRepository struct {
	db Querier
}

func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts user. A zero ID lets the database assign one.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	var row *tracedRow
	if user.ID == 0 {
		row = r.db.QueryRowContext(ctx, `
			INSERT INTO users (email, name) VALUES ($1, $2)
			RETURNING id, created_at
		`, user.Email, user.Name)
	} else {
		row = r.db.QueryRowContext(ctx, `
			INSERT INTO users (id, email, name) VALUES ($1, $2, $3)
			RETURNING id, created_at
		`, user.ID, user.Email, user.Name)
	}

	if err := row.Scan(&user.ID, &user.CreatedAt); err != nil {
		return mapError("create user", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, mapError("get user", err)
	}
	return &u, nil
}
