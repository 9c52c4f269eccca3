package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/chatbus/internal/core"
	"github.com/adamavenir/chatbus/internal/types"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// UpsertUser creates a user or updates the display name of an existing one.
func UpsertUser(db DBTX, id, displayName string) (types.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.User{}, fmt.Errorf("user id is required")
	}
	if displayName == "" {
		displayName = id
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at
	`, id, displayName, now, now)
	if err != nil {
		return types.User{}, err
	}
	user, err := GetUser(db, id)
	if err != nil {
		return types.User{}, err
	}
	return *user, nil
}

// GetUser returns a user by id, or nil when it does not exist.
func GetUser(db DBTX, id string) (*types.User, error) {
	row := db.QueryRow(`SELECT id, display_name, status, avatar, created_at, updated_at FROM users WHERE id = ?`, id)
	var user types.User
	var status, avatar sql.NullString
	if err := row.Scan(&user.ID, &user.DisplayName, &status, &avatar, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.Status = nullStringPtr(status)
	user.Avatar = nullStringPtr(avatar)
	return &user, nil
}

// ListUsers returns every user ordered by id.
func ListUsers(db DBTX) ([]types.User, error) {
	rows, err := db.Query(`SELECT id, display_name, status, avatar, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var user types.User
		var status, avatar sql.NullString
		if err := rows.Scan(&user.ID, &user.DisplayName, &status, &avatar, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		user.Status = nullStringPtr(status)
		user.Avatar = nullStringPtr(avatar)
		users = append(users, user)
	}
	return users, rows.Err()
}

// UserProfileUpdates holds optional profile changes.
type UserProfileUpdates struct {
	DisplayName types.OptionalString
	Status      types.OptionalString
	Avatar      types.OptionalString
}

// UpdateUserProfile applies the set fields. It returns ErrNotFound for an unknown user.
func UpdateUserProfile(db DBTX, id string, updates UserProfileUpdates) error {
	var sets []string
	var args []any

	if updates.DisplayName.Set {
		if updates.DisplayName.Value == nil || *updates.DisplayName.Value == "" {
			return fmt.Errorf("display name cannot be empty")
		}
		sets = append(sets, "display_name = ?")
		args = append(args, *updates.DisplayName.Value)
	}
	if updates.Status.Set {
		sets = append(sets, "status = ?")
		args = append(args, nullableValue(updates.Status.Value))
	}
	if updates.Avatar.Set {
		sets = append(sets, "avatar = ?")
		args = append(args, nullableValue(updates.Avatar.Value))
	}
	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UnixMilli(), id)

	result, err := db.Exec(fmt.Sprintf("UPDATE users SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func generateUniqueGUIDForTable(db DBTX, table, prefix string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		guid, err := core.GenerateGUID(prefix)
		if err != nil {
			return "", err
		}
		row := db.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), guid)
		var exists int
		err = row.Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return guid, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("failed to generate unique %s id", prefix)
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullableValue(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
