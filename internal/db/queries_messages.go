package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamavenir/chatbus/internal/types"
)

const messageColumns = `id, chat_id, sender_id, body, media_ref, media_type, sent_at`

// InsertMessage stores a message, assigning an id and timestamp when missing.
func InsertMessage(db DBTX, message types.Message) (types.Message, error) {
	if message.ChatID == "" || message.SenderID == "" {
		return types.Message{}, fmt.Errorf("message needs a chat and a sender")
	}
	if message.Body == "" && message.MediaRef == "" {
		return types.Message{}, fmt.Errorf("message needs a body or media")
	}
	if message.ID == "" {
		id, err := generateUniqueGUIDForTable(db, "messages", "msg")
		if err != nil {
			return types.Message{}, err
		}
		message.ID = id
	}
	if message.SentAt == 0 {
		message.SentAt = time.Now().UnixMilli()
	}

	var mediaRef, mediaType any
	if message.MediaRef != "" {
		mediaRef = message.MediaRef
		mediaType = string(message.MediaType)
	}
	_, err := db.Exec(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.ChatID, message.SenderID, message.Body, mediaRef, mediaType, message.SentAt)
	if err != nil {
		return types.Message{}, err
	}
	return message, nil
}

// GetMessage returns a message by id, or nil when it does not exist.
func GetMessage(db DBTX, id string) (*types.Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	message, err := scanMessage(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// ChatOfMessage returns the chat a message was sent to.
func ChatOfMessage(db DBTX, messageID string) (string, error) {
	var chatID string
	err := db.QueryRow(`SELECT chat_id FROM messages WHERE id = ?`, messageID).Scan(&chatID)
	if err != nil {
		if isNoRows(err) {
			return "", fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		return "", err
	}
	return chatID, nil
}

// ListMessages returns the most recent messages of a chat, oldest first.
// A limit of zero returns everything.
func ListMessages(db DBTX, chatID string, limit int) ([]types.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
		SELECT ` + messageColumns + `, rowid AS rid FROM messages WHERE chat_id = ? ORDER BY sent_at DESC, rid DESC`
	args := []any{chatID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY sent_at ASC, rid ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// MarkRead records that userID read messageID. Repeated reads keep the first time.
func MarkRead(db DBTX, messageID, userID string) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`,
		messageID, userID, time.Now().UnixMilli())
	return err
}

// ReadBy returns the users who have read a message.
func ReadBy(db DBTX, messageID string) ([]string, error) {
	rows, err := db.Query(`SELECT user_id FROM message_reads WHERE message_id = ? ORDER BY read_at, user_id`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (types.Message, error) {
	var message types.Message
	var mediaRef, mediaType sql.NullString
	if err := row.Scan(&message.ID, &message.ChatID, &message.SenderID, &message.Body, &mediaRef, &mediaType, &message.SentAt); err != nil {
		return types.Message{}, err
	}
	message.MediaRef = mediaRef.String
	message.MediaType = types.MediaType(mediaType.String)
	return message, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
