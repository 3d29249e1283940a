package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jacklau/dispatch/internal/model"
)

// User is a team member record.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      model.Role
	Active    bool
	CreatedAt time.Time
}

// UpsertUser inserts or updates a user.
func (d *DB) UpsertUser(u *User) error {
	_, err := d.db.Exec(`
		INSERT INTO users (id, name, email, role, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			active = excluded.active`,
		u.ID, u.Name, nullStr(u.Email), u.Role.String(), u.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (d *DB) GetUser(id string) (*User, error) {
	row := d.db.QueryRow(`SELECT id, name, email, role, active, created_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

// ListUsers returns every user ordered by id.
func (d *DB) ListUsers() ([]User, error) {
	rows, err := d.db.Query(`SELECT id, name, email, role, active, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(s rowScanner) (*User, error) {
	var u User
	var email sql.NullString
	var role, createdAt string

	if err := s.Scan(&u.ID, &u.Name, &email, &role, &u.Active, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.Email = email.String
	u.Role, _ = model.ParseRole(role)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

// EnsureUser creates a user with the given role if none exists. An existing
// reporter is promoted when seen in an assignable role; other existing users
// are left untouched.
func (d *DB) EnsureUser(id string, role model.Role) error {
	_, err := d.db.Exec(`
		INSERT INTO users (id, name, role, active) VALUES (?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role
		WHERE users.role = 'REPORTER' AND excluded.role != 'REPORTER'`,
		id, id, role.String(),
	)
	if err != nil {
		return fmt.Errorf("ensuring user %s: %w", id, err)
	}
	return nil
}
