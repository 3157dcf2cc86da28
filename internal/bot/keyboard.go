package bot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Callback data carried by the menu buttons.
const (
	callbackVoiceInfo       = "voice_info"
	callbackTranscribe      = "transcribe"
	callbackPersonalSummary = "personal_summary"
	callbackSummaryAlias    = "summary"
	callbackWorkSummary     = "work_summary"
	callbackMessages        = "messages"
	callbackHelp            = "help"
)

func mainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎵 Send a voice message", callbackVoiceInfo),
			tgbotapi.NewInlineKeyboardButtonData("📝 Transcriptions", callbackTranscribe),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Personal summary", callbackPersonalSummary),
			tgbotapi.NewInlineKeyboardButtonData("📋 All messages", callbackMessages),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Work summary", callbackWorkSummary),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Help", callbackHelp),
		),
	)
}
