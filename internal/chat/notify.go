package chat

import (
	"github.com/gen2brain/beeep"

	"github.com/adamavenir/chatbus/internal/types"
)

const notificationBodyLimit = 120

// notifier delivers desktop notifications; tests swap it out.
var notifier = func(title, body string) error {
	return beeep.Notify(title, body, "")
}

func notifyMessage(chatName, senderName string, msg types.Message) error {
	title := senderName + " in " + chatName
	body := msg.Body
	if body == "" && msg.MediaRef != "" {
		body = "sent " + mediaLabel(msg.MediaType)
	}
	return notifier(title, truncateNotification(body, notificationBodyLimit))
}

func truncateNotification(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func mediaLabel(mediaType types.MediaType) string {
	switch mediaType {
	case types.MediaImage:
		return "an image"
	case types.MediaVoice:
		return "a voice message"
	default:
		return "a file"
	}
}
