package db

import "database/sql"

// Directory answers membership and message-location queries for the bus.
type Directory struct {
	db *sql.DB
}

// NewDirectory wraps an open database.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Participants returns the members of chatID.
func (d *Directory) Participants(chatID string) ([]string, error) {
	return Participants(d.db, chatID)
}

// ChatOfMessage returns the chat messageID belongs to.
func (d *Directory) ChatOfMessage(messageID string) (string, error) {
	return ChatOfMessage(d.db, messageID)
}
