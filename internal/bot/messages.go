package bot

// User-facing texts. Failure paths always end in one of these.
const (
	textWelcome = "Hi! I keep a journal of your voice and text messages.\n\n" +
		"Send me a voice message and I will transcribe it, or just write to me. " +
		"At the end of the day ask for a summary.\n\nChoose an action:"

	textHelp = "How to use the bot:\n\n" +
		"🎵 Send a voice message: I back it up and transcribe it.\n" +
		"📝 Send a text message: I save it as is.\n\n" +
		"Commands:\n" +
		"/transcribe - today's transcriptions and texts\n" +
		"/summary - personal summary of today\n" +
		"/work_summary - work summary of today\n" +
		"/messages - all of today's messages\n" +
		"/help - this help"

	textVoiceInfo = "🎵 Record a voice message in this chat and send it. " +
		"I will transcribe it and save it for today's summary."

	textProcessingVoice   = "🎵 Processing your voice message..."
	textGeneratingSummary = "⏳ Generating the summary..."
	textTextSaved         = "📝 Saved: %s"

	textTranscriptionsHeader = "📝 Today's transcriptions:\n\n"
	textTranscriptionItem    = "• %s"
	textSummaryHeader        = "📊 Summary for %s:\n\n"
	textMessagesHeader       = "📋 Messages for %s:\n\n"

	placeholderNotRecognized = "not recognized"
	placeholderEmptyMessage  = "empty message"

	noticeNoMessagesToday            = "You have no messages today."
	noticeNoTranscriptions           = "Today's messages have no transcriptions yet."
	noticeNoMessagesForSummary       = "There are no messages to summarize today."
	noticeNoTranscriptionsForSummary = "None of today's messages has text to summarize."
	noticeNoMessagesForDisplay       = "There are no messages to show today."
	noticeVoiceError                 = "❌ Could not process the voice message. Please try again."
	noticeNoSpeech                   = "I could not hear any speech in this voice message."
	noticeStorageError               = "⚠️ The message could not be saved. Please send it again later."
	noticeTryAgain                   = "Something went wrong. Please try again."
	noticeUnknownCommand             = "Unknown command. Send /help to see what I can do."
)
