package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, URLRequired, "Please enter a URL")
	message.SetString(lang, StartFailed, "Failed to start monitoring")
	message.SetString(lang, Retrying, "Connection error (%d/%d). Retrying...")
	message.SetString(lang, ConnectionLost, "Connection error. Please reconnect.")
	message.SetString(lang, Connecting, "Connecting...")
	message.SetString(lang, Monitoring, "Monitoring...")
	message.SetString(lang, Stopped, "Stopped")
	message.SetString(lang, GroupHeader, "(%d items / %d users)")
	message.SetString(lang, RowCount, "[%d]")
}
