package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Japanese

	message.SetString(lang, URLRequired, "URLを入力してください")
	message.SetString(lang, StartFailed, "モニタリングの開始に失敗しました")
	message.SetString(lang, Retrying, "接続エラーが発生しました(%d/%d)。再試行中...")
	message.SetString(lang, ConnectionLost, "接続エラーが発生しました。再接続してください。")
	message.SetString(lang, Connecting, "接続中...")
	message.SetString(lang, Monitoring, "モニタリング中...")
	message.SetString(lang, Stopped, "停止中")
	message.SetString(lang, GroupHeader, "(%d件 / %dユーザー)")
	message.SetString(lang, RowCount, "[%d件]")
}
