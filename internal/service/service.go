// Package service implements chat and profile actions. Each action persists
// locally first and then propagates through the bus; propagation failures
// never fail the action.
package service

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/adamavenir/chatbus/internal/bus"
	"github.com/adamavenir/chatbus/internal/db"
	"github.com/adamavenir/chatbus/internal/types"
)

// Publisher is the part of the bus the services propagate through.
type Publisher interface {
	BroadcastMessage(msg types.Message) error
	NotifyMessageRead(messageID, userID string) error
	BroadcastProfileUpdate(userID string) error
	SetUserOnline(userID string, online bool) error
	RegisterSession(userID string, listener bus.Listener) *bus.SessionHandle
	Logout(userID string) error
}

// Result reports the outcome of propagating a local change. A non-nil
// PropagationErr means other processes will not see the change until they
// re-fetch from the database.
type Result struct {
	PropagationErr error
}

// Propagated reports whether the change reached the bus.
func (r Result) Propagated() bool {
	return r.PropagationErr == nil
}

// Media describes an optional message attachment.
type Media struct {
	Ref  string
	Type types.MediaType
}

// ProfileUpdate holds optional profile changes.
type ProfileUpdate struct {
	DisplayName types.OptionalString
	Status      types.OptionalString
	Avatar      types.OptionalString
}

// ChatService runs user actions against the database and the bus.
type ChatService struct {
	db     *sql.DB
	bus    Publisher
	logger zerolog.Logger
}

// NewChatService builds a service.
func NewChatService(database *sql.DB, publisher Publisher, logger zerolog.Logger) *ChatService {
	return &ChatService{db: database, bus: publisher, logger: logger}
}

// SendMessage stores a message from senderID, then broadcasts it.
func (s *ChatService) SendMessage(chatID, senderID, body string, media *Media) (types.Message, Result, error) {
	if err := s.requireMember(chatID, senderID); err != nil {
		return types.Message{}, Result{}, err
	}
	msg := types.Message{ChatID: chatID, SenderID: senderID, Body: body}
	if media != nil && media.Ref != "" {
		msg.MediaRef = media.Ref
		msg.MediaType = media.Type
		if msg.MediaType == types.MediaNone {
			msg.MediaType = types.MediaFile
		}
	}
	stored, err := db.InsertMessage(s.db, msg)
	if err != nil {
		return types.Message{}, Result{}, fmt.Errorf("store message: %w", err)
	}
	return stored, s.propagate("message", s.bus.BroadcastMessage(stored)), nil
}

// MarkRead records a read receipt, then notifies other processes.
func (s *ChatService) MarkRead(messageID, userID string) (Result, error) {
	msg, err := db.GetMessage(s.db, messageID)
	if err != nil {
		return Result{}, err
	}
	if msg == nil {
		return Result{}, fmt.Errorf("message %s: %w", messageID, db.ErrNotFound)
	}
	if err := db.MarkRead(s.db, messageID, userID); err != nil {
		return Result{}, fmt.Errorf("store read receipt: %w", err)
	}
	return s.propagate("read receipt", s.bus.NotifyMessageRead(messageID, userID)), nil
}

// UpdateProfile applies profile changes, then tells other processes to re-fetch.
func (s *ChatService) UpdateProfile(userID string, update ProfileUpdate) (Result, error) {
	err := db.UpdateUserProfile(s.db, userID, db.UserProfileUpdates{
		DisplayName: update.DisplayName,
		Status:      update.Status,
		Avatar:      update.Avatar,
	})
	if err != nil {
		return Result{}, fmt.Errorf("update profile: %w", err)
	}
	return s.propagate("profile update", s.bus.BroadcastProfileUpdate(userID)), nil
}

// Login registers a session for an existing user and marks the user online.
func (s *ChatService) Login(userID string, listener bus.Listener) (*bus.SessionHandle, Result, error) {
	user, err := db.GetUser(s.db, userID)
	if err != nil {
		return nil, Result{}, err
	}
	if user == nil {
		return nil, Result{}, fmt.Errorf("user %s: %w", userID, db.ErrNotFound)
	}
	handle := s.bus.RegisterSession(userID, listener)
	return handle, s.propagate("presence", s.bus.SetUserOnline(userID, true)), nil
}

// Logout unregisters every session of userID and marks the user offline.
func (s *ChatService) Logout(userID string) Result {
	return s.propagate("presence", s.bus.Logout(userID))
}

func (s *ChatService) requireMember(chatID, userID string) error {
	members, err := db.Participants(s.db, chatID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == userID {
			return nil
		}
	}
	return fmt.Errorf("%s is not a member of %s", userID, chatID)
}

func (s *ChatService) propagate(what string, err error) Result {
	if err != nil {
		s.logger.Warn().Err(err).Msgf("%s saved locally but not propagated", what)
	}
	return Result{PropagationErr: err}
}
