package bus

import "github.com/adamavenir/chatbus/internal/types"

// Listener receives bus callbacks for one session. Methods are always
// invoked on the executor, never concurrently.
type Listener interface {
	OnNewMessage(msg types.Message)
	OnTypingStatusChanged(chatID, userID string, typing bool)
	OnMessageRead(messageID, userID string)
	OnUserProfileUpdated(userID string)
	OnUserOnlineStatusChanged(userID string, online bool)
}

// ResyncListener is implemented by listeners that want to know when
// events were missed and cached presence or profile state should be
// re-fetched from the persistence layer.
type ResyncListener interface {
	OnResync()
}

// ListenerFuncs adapts optional funcs to a Listener. Nil fields are ignored.
type ListenerFuncs struct {
	NewMessage              func(msg types.Message)
	TypingStatusChanged     func(chatID, userID string, typing bool)
	MessageRead             func(messageID, userID string)
	UserProfileUpdated      func(userID string)
	UserOnlineStatusChanged func(userID string, online bool)
	Resync                  func()
}

func (f ListenerFuncs) OnNewMessage(msg types.Message) {
	if f.NewMessage != nil {
		f.NewMessage(msg)
	}
}

func (f ListenerFuncs) OnTypingStatusChanged(chatID, userID string, typing bool) {
	if f.TypingStatusChanged != nil {
		f.TypingStatusChanged(chatID, userID, typing)
	}
}

func (f ListenerFuncs) OnMessageRead(messageID, userID string) {
	if f.MessageRead != nil {
		f.MessageRead(messageID, userID)
	}
}

func (f ListenerFuncs) OnUserProfileUpdated(userID string) {
	if f.UserProfileUpdated != nil {
		f.UserProfileUpdated(userID)
	}
}

func (f ListenerFuncs) OnUserOnlineStatusChanged(userID string, online bool) {
	if f.UserOnlineStatusChanged != nil {
		f.UserOnlineStatusChanged(userID, online)
	}
}

func (f ListenerFuncs) OnResync() {
	if f.Resync != nil {
		f.Resync()
	}
}
