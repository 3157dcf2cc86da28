package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
	"github.com/brelok-the-pok/summary-bot/internal/testutil"
	"github.com/brelok-the-pok/summary-bot/internal/usecase"
)

const (
	testChatID = int64(7)
	testUserID = int64(42)
)

var dispatcherNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int

	sendErr error
	editErr error
	fileURL string
	fileErr error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: 100 + f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.editErr != nil {
		return nil, f.editErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(string) (string, error) {
	return f.fileURL, f.fileErr
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeSender) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.requests {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, e)
		}
	}
	return out
}

type stubSTT struct {
	text  string
	err   error
	calls int
	audio []byte
}

func (s *stubSTT) Recognize(_ context.Context, audio []byte) (string, error) {
	s.calls++
	s.audio = audio
	return s.text, s.err
}

type stubUploader struct {
	err   error
	calls int
}

func (s *stubUploader) UploadVoice(_ context.Context, _ []byte, userID string, messageID int64, day string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "voice_messages/" + userID + "/" + day + "/x.ogg", nil
}

type stubLLM struct {
	answer string
	err    error
	calls  int
}

func (s *stubLLM) Complete(context.Context, []domain.ChatMessage) (string, error) {
	s.calls++
	return s.answer, s.err
}

type statusError struct {
	code int
}

func (e *statusError) Error() string       { return "upstream status " + http.StatusText(e.code) }
func (e *statusError) HTTPStatusCode() int { return e.code }

type testBot struct {
	d        *Dispatcher
	api      *fakeSender
	store    *testutil.MemoryStore
	stt      *stubSTT
	uploader *stubUploader
	llm      *stubLLM
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	tb := &testBot{
		api:      &fakeSender{},
		store:    testutil.NewMemoryStore(),
		stt:      &stubSTT{text: "walked the dog"},
		uploader: &stubUploader{},
		llm:      &stubLLM{answer: "a calm day"},
	}
	sum, err := usecase.NewSummarizer(tb.llm)
	require.NoError(t, err)
	journal, err := usecase.NewJournalService(tb.store, tb.stt, tb.uploader, sum,
		usecase.WithLocation(time.UTC),
		usecase.WithNow(func() time.Time { return dispatcherNow }),
	)
	require.NoError(t, err)
	tb.d, err = NewDispatcher(tb.api, journal)
	require.NoError(t, err)
	return tb
}

func (tb *testBot) serveVoice(t *testing.T, status int, body []byte) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	tb.api.fileURL = srv.URL + "/file/voice.ogg"
}

func newMessage(id int) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: id,
		From:      &tgbotapi.User{ID: testUserID},
		Chat:      &tgbotapi.Chat{ID: testChatID},
	}
}

func commandUpdate(command string) tgbotapi.Update {
	msg := newMessage(10)
	msg.Text = "/" + command
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(msg.Text)}}
	return tgbotapi.Update{UpdateID: 1, Message: msg}
}

func textUpdate(id int, text string) tgbotapi.Update {
	msg := newMessage(id)
	msg.Text = text
	return tgbotapi.Update{UpdateID: 2, Message: msg}
}

func voiceUpdate(id int) tgbotapi.Update {
	msg := newMessage(id)
	msg.Voice = &tgbotapi.Voice{FileID: "file-1", Duration: 3}
	return tgbotapi.Update{UpdateID: 3, Message: msg}
}

func callbackUpdate(data string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 4, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: testUserID},
		Message: newMessage(55),
		Data:    data,
	}}
}

func (tb *testBot) seedText(t *testing.T, id int, text string) {
	t.Helper()
	require.NoError(t, tb.d.HandleUpdate(context.Background(), textUpdate(id, text)))
}

func TestNewDispatcher_ValidatesDependencies(t *testing.T) {
	_, err := NewDispatcher(nil, &usecase.JournalService{})
	require.Error(t, err)
	_, err = NewDispatcher(&fakeSender{}, nil)
	require.Error(t, err)
}

func TestHandleUpdate_StartSendsWelcomeWithMenu(t *testing.T) {
	tb := newTestBot(t)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), commandUpdate("start")))

	msgs := tb.api.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, testChatID, msgs[0].ChatID)
	require.Equal(t, textWelcome, msgs[0].Text)
	require.Equal(t, mainMenu(), msgs[0].ReplyMarkup)
}

func TestHandleUpdate_UnknownCommand(t *testing.T) {
	tb := newTestBot(t)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), commandUpdate("nope")))

	msgs := tb.api.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, noticeUnknownCommand, msgs[0].Text)
	require.Nil(t, msgs[0].ReplyMarkup)
}

func TestHandleUpdate_IgnoresUpdatesWithoutSender(t *testing.T) {
	tb := newTestBot(t)

	msg := newMessage(1)
	msg.From = nil
	msg.Text = "hello"
	require.NoError(t, tb.d.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg}))
	require.NoError(t, tb.d.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 9}))

	require.Empty(t, tb.api.messages())
	require.Zero(t, tb.store.Len())
}

func TestHandleUpdate_TextIsStoredAndEchoed(t *testing.T) {
	tb := newTestBot(t)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), textUpdate(11, "bought milk")))

	msgs := tb.api.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "📝 Saved: bought milk", msgs[0].Text)
	require.Equal(t, mainMenu(), msgs[0].ReplyMarkup)

	recs, err := tb.store.ListByUserDay(context.Background(), "42", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.MessageTypeText, recs[0].Type)
	require.Equal(t, "bought milk", recs[0].TextContent)
	require.Equal(t, int64(11), recs[0].MessageID)
}

func TestHandleUpdate_TextStorageFailure(t *testing.T) {
	tb := newTestBot(t)
	tb.store.InsertErr = errors.New("db down")

	require.NoError(t, tb.d.HandleUpdate(context.Background(), textUpdate(11, "bought milk")))

	msgs := tb.api.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, noticeStorageError, msgs[0].Text)
}

func TestHandleUpdate_VoiceIsTranscribedAndStored(t *testing.T) {
	tb := newTestBot(t)
	tb.serveVoice(t, http.StatusOK, []byte("OggS-audio"))

	require.NoError(t, tb.d.HandleUpdate(context.Background(), voiceUpdate(12)))

	msgs := tb.api.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, textProcessingVoice, msgs[0].Text)

	edits := tb.api.edits()
	require.Len(t, edits, 1)
	require.Equal(t, 101, edits[0].MessageID)
	require.Equal(t, "walked the dog", edits[0].Text)
	require.NotNil(t, edits[0].ReplyMarkup)

	require.Equal(t, []byte("OggS-audio"), tb.stt.audio)
	require.Equal(t, 1, tb.uploader.calls)

	recs, err := tb.store.ListByUserDay(context.Background(), "42", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.MessageTypeVoice, recs[0].Type)
	require.Equal(t, "walked the dog", recs[0].Transcription)
	require.Equal(t, "voice_messages/42/2024-01-01/x.ogg", recs[0].S3Key)
}

func TestHandleUpdate_VoiceDownloadFailureStillRecords(t *testing.T) {
	tb := newTestBot(t)
	tb.serveVoice(t, http.StatusInternalServerError, nil)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), voiceUpdate(12)))

	edits := tb.api.edits()
	require.Len(t, edits, 1)
	require.Equal(t, noticeVoiceError, edits[0].Text)
	require.Zero(t, tb.stt.calls)
	require.Zero(t, tb.uploader.calls)

	recs, err := tb.store.ListByUserDay(context.Background(), "42", "2024-01-01")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, usecase.TranscriptionFailed, recs[0].Transcription)
	require.Empty(t, recs[0].S3Key)
}

func TestHandleUpdate_VoiceRecognitionFailure(t *testing.T) {
	tb := newTestBot(t)
	tb.serveVoice(t, http.StatusOK, []byte("OggS-audio"))
	tb.stt.err = errors.New("speechkit down")

	require.NoError(t, tb.d.HandleUpdate(context.Background(), voiceUpdate(12)))

	edits := tb.api.edits()
	require.Len(t, edits, 1)
	require.Equal(t, usecase.TranscriptionFailed, edits[0].Text)
	require.Equal(t, 1, tb.store.Len())
}

func TestHandleUpdate_VoiceWithoutSpeech(t *testing.T) {
	tb := newTestBot(t)
	tb.serveVoice(t, http.StatusOK, []byte("OggS-audio"))
	tb.stt.text = "  "

	require.NoError(t, tb.d.HandleUpdate(context.Background(), voiceUpdate(12)))

	edits := tb.api.edits()
	require.Len(t, edits, 1)
	require.Equal(t, noticeNoSpeech, edits[0].Text)
}

func TestHandleUpdate_VoiceStorageFailureKeepsTranscription(t *testing.T) {
	tb := newTestBot(t)
	tb.serveVoice(t, http.StatusOK, []byte("OggS-audio"))
	tb.store.InsertErr = errors.New("db down")

	require.NoError(t, tb.d.HandleUpdate(context.Background(), voiceUpdate(12)))

	edits := tb.api.edits()
	require.Len(t, edits, 1)
	require.Equal(t, "walked the dog\n\n"+noticeStorageError, edits[0].Text)
}

func TestHandleUpdate_TranscribeCommand(t *testing.T) {
	tb := newTestBot(t)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), commandUpdate("transcribe")))
	tb.seedText(t, 20, "first")
	tb.seedText(t, 21, "second")
	require.NoError(t, tb.d.HandleUpdate(context.Background(), commandUpdate("transcribe")))

	msgs := tb.api.messages()
	require.Len(t, msgs, 4)
	require.Equal(t, noticeNoMessagesToday, msgs[0].Text)
	require.Equal(t, textTranscriptionsHeader+"• first\n\n• second", msgs[3].Text)
}

func TestHandleUpdate_TranscribeWithOnlyEmptyContent(t *testing.T) {
	tb := newTestBot(t)
	_, err := tb.store.Insert(context.Background(), domain.NewVoiceRecord("42", 1, dispatcherNow, "", ""))
	require.NoError(t, err)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), commandUpdate("transcribe")))

	msgs := tb.api.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, noticeNoTranscriptions, msgs[0].Text)
}

func TestHandleUpdate_SummaryCallbackEditsInPlace(t *testing.T) {
	tb := newTestBot(t)
	tb.seedText(t, 20, "worked on the report")

	require.NoError(t, tb.d.HandleUpdate(context.Background(), callbackUpdate(callbackPersonalSummary)))

	tb.api.mu.Lock()
	answer, ok := tb.api.requests[0].(tgbotapi.CallbackConfig)
	tb.api.mu.Unlock()
	require.True(t, ok)
	require.Equal(t, "cb-1", answer.CallbackQueryID)

	edits := tb.api.edits()
	require.Len(t, edits, 2)
	require.Equal(t, textGeneratingSummary, edits[0].Text)
	require.Equal(t, 55, edits[1].MessageID)
	require.Equal(t, "📊 Summary for 2024-01-01:\n\na calm day", edits[1].Text)
	require.Equal(t, 1, tb.llm.calls)
}

func TestHandleUpdate_SummaryWithoutMessagesSkipsLLM(t *testing.T) {
	tb := newTestBot(t)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), commandUpdate("work_summary")))

	msgs := tb.api.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, noticeNoMessagesForSummary, msgs[0].Text)
	require.Zero(t, tb.llm.calls)
}

func TestHandleUpdate_SummaryFailureShowsNotice(t *testing.T) {
	tb := newTestBot(t)
	tb.seedText(t, 20, "worked on the report")
	tb.llm.err = errors.New("llm down")

	require.NoError(t, tb.d.HandleUpdate(context.Background(), commandUpdate("summary")))

	msgs := tb.api.messages()
	// echo, progress indicator
	require.Len(t, msgs, 2)
	require.Equal(t, textGeneratingSummary, msgs[1].Text)

	edits := tb.api.edits()
	require.Len(t, edits, 1)
	require.Equal(t, usecase.NoticeGenerationError, edits[0].Text)
	require.NotContains(t, edits[0].Text, "Summary for")
}

func TestHandleUpdate_RateLimitedSummaryShowsNoticeOnly(t *testing.T) {
	tb := newTestBot(t)
	tb.seedText(t, 20, "worked on the report")
	tb.llm.err = &statusError{code: http.StatusTooManyRequests}

	require.NoError(t, tb.d.HandleUpdate(context.Background(), callbackUpdate(callbackWorkSummary)))

	edits := tb.api.edits()
	require.Len(t, edits, 2)
	require.Equal(t, usecase.NoticeRateLimited, edits[1].Text)
	require.NotNil(t, edits[1].ReplyMarkup)
}

func TestHandleUpdate_MessagesCallback(t *testing.T) {
	tb := newTestBot(t)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), callbackUpdate(callbackMessages)))
	edits := tb.api.edits()
	require.Len(t, edits, 1)
	require.Equal(t, noticeNoMessagesForDisplay, edits[0].Text)

	tb.seedText(t, 20, "hello")
	require.NoError(t, tb.d.HandleUpdate(context.Background(), callbackUpdate(callbackMessages)))
	edits = tb.api.edits()
	require.Len(t, edits, 2)
	require.Contains(t, edits[1].Text, "📋 Messages for 2024-01-01:")
	require.Contains(t, edits[1].Text, "1. 2024-01-01T12:00:00Z\n📝 hello")
}

func TestHandleUpdate_EditNotModifiedIsIgnored(t *testing.T) {
	tb := newTestBot(t)
	tb.api.editErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}

	require.NoError(t, tb.d.HandleUpdate(context.Background(), callbackUpdate(callbackHelp)))
}

func TestHandleUpdate_EditFailureIsReturned(t *testing.T) {
	tb := newTestBot(t)
	tb.api.editErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}

	err := tb.d.HandleUpdate(context.Background(), callbackUpdate(callbackHelp))
	require.Error(t, err)
}

func TestHandleUpdate_UnknownCallbackIsIgnored(t *testing.T) {
	tb := newTestBot(t)

	require.NoError(t, tb.d.HandleUpdate(context.Background(), callbackUpdate("bogus")))
	require.Empty(t, tb.api.edits())
	require.Empty(t, tb.api.messages())
}

func TestRun_DrainsUntilChannelCloses(t *testing.T) {
	tb := newTestBot(t)

	updates := make(chan tgbotapi.Update, 3)
	updates <- commandUpdate("start")
	updates <- commandUpdate("help")
	updates <- commandUpdate("start")
	close(updates)

	done := make(chan struct{})
	go func() {
		tb.d.Run(context.Background(), updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	require.Len(t, tb.api.messages(), 3)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	tb := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		tb.d.Run(ctx, make(chan tgbotapi.Update))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRespond_BlankTextSendsNotice(t *testing.T) {
	tb := newTestBot(t)

	err := tb.d.respond(slog.Default(), target{chatID: testChatID}, strings.Repeat("\n", maxMessageLen+10))
	require.NoError(t, err)

	msgs := tb.api.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, noticeTryAgain, msgs[0].Text)
}
