package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/chatbus/internal/types"
)

// CreateChat inserts a chat. An empty id gets a generated one.
func CreateChat(db DBTX, chat types.Chat) (types.Chat, error) {
	if chat.Kind == "" {
		chat.Kind = types.ChatGroup
	}
	switch chat.Kind {
	case types.ChatDirect, types.ChatGroup, types.ChatChannel:
	default:
		return types.Chat{}, fmt.Errorf("invalid chat kind %q", chat.Kind)
	}
	if chat.ID == "" {
		id, err := generateUniqueGUIDForTable(db, "chats", "chat")
		if err != nil {
			return types.Chat{}, err
		}
		chat.ID = id
	}
	if strings.Contains(chat.ID, "/") {
		return types.Chat{}, fmt.Errorf("chat id %q must not contain '/'", chat.ID)
	}
	if chat.Name == "" {
		chat.Name = chat.ID
	}
	if chat.CreatedAt == 0 {
		chat.CreatedAt = time.Now().UnixMilli()
	}

	_, err := db.Exec(`INSERT INTO chats (id, name, kind, created_at) VALUES (?, ?, ?, ?)`,
		chat.ID, chat.Name, string(chat.Kind), chat.CreatedAt)
	if err != nil {
		return types.Chat{}, err
	}
	return chat, nil
}

// GetChat returns a chat by id, or nil when it does not exist.
func GetChat(db DBTX, id string) (*types.Chat, error) {
	row := db.QueryRow(`SELECT id, name, kind, created_at FROM chats WHERE id = ?`, id)
	var chat types.Chat
	var kind string
	if err := row.Scan(&chat.ID, &chat.Name, &kind, &chat.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	chat.Kind = types.ChatKind(kind)
	return &chat, nil
}

// AddMember adds userID to chatID. Adding an existing member is a no-op.
func AddMember(db DBTX, chatID, userID string) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO chat_members (chat_id, user_id, joined_at) VALUES (?, ?, ?)`,
		chatID, userID, time.Now().UnixMilli())
	return err
}

// Participants returns the member ids of a chat ordered by id.
func Participants(db DBTX, chatID string) ([]string, error) {
	rows, err := db.Query(`SELECT user_id FROM chat_members WHERE chat_id = ? ORDER BY user_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// ChatsForUser returns the chats userID belongs to.
func ChatsForUser(db DBTX, userID string) ([]types.Chat, error) {
	rows, err := db.Query(`
		SELECT c.id, c.name, c.kind, c.created_at
		FROM chats c JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []types.Chat
	for rows.Next() {
		var chat types.Chat
		var kind string
		if err := rows.Scan(&chat.ID, &chat.Name, &kind, &chat.CreatedAt); err != nil {
			return nil, err
		}
		chat.Kind = types.ChatKind(kind)
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}
