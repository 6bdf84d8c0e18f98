package telegram

import (
	"fmt"
	"strconv"
)

const HelpText = `Commands:
/start - show your chat id
/chatid - show your chat id
/help - show this help

Paste the chat id into the Telegram section of your alert preferences.
To alert a channel, add this bot as an admin and post /chatid in the channel.`

// ChatIDText renders the reply for /start and /chatid.
func ChatIDText(chatID int64, chatType string) string {
	kind := "chat"
	switch chatType {
	case "group", "supergroup":
		kind = "group"
	case "channel":
		kind = "channel"
	}
	return fmt.Sprintf("Your %s id is: %s\n\nPaste it into the Telegram chat id field of your alert preferences.", kind, strconv.FormatInt(chatID, 10))
}
