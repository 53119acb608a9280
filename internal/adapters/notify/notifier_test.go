package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recordingSender) Send(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

type panickingSender struct{}

func (panickingSender) Send(context.Context, string) error { panic("boom") }
func (panickingSender) Name() string                        { return "panic" }

func TestNotifier_DispatchFansOut(t *testing.T) {
	failing := &recordingSender{err: errors.New("down")}
	ok := &recordingSender{}
	n := NewNotifier("mainnet", failing, ok)

	err := n.Dispatch(context.Background(), "loan stuck")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording: down")
	assert.Equal(t, []string{"[mainnet] loan stuck"}, ok.messages())
	assert.Equal(t, []string{"[mainnet] loan stuck"}, failing.messages())
}

func TestNotifier_PrefixIsBracketedOnce(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier("sovryn-node", s)

	require.NoError(t, n.Dispatch(context.Background(), "hello"))
	assert.Equal(t, []string{"[sovryn-node] hello"}, s.messages())
}

func TestNotifier_NotifyIsFireAndForget(t *testing.T) {
	s := &recordingSender{err: errors.New("down")}
	n := NewNotifier("", panickingSender{}, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, "hello")
	n.Wait()

	// the panicking sender aborts the dispatch but never the caller
	assert.Empty(t, s.messages())

	n2 := NewNotifier("", s)
	n2.Notify(ctx, "hello")
	n2.Wait()
	assert.Equal(t, []string{"hello"}, s.messages())
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramSender_Send(t *testing.T) {
	bot := &fakeBot{}
	s := &TelegramSender{api: bot, chatID: -100123}

	require.NoError(t, s.Send(context.Background(), "alert"))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(-100123), bot.sent[0].ChatID)
	assert.Equal(t, "alert", bot.sent[0].Text)

	bot.err = errors.New("forbidden")
	assert.Error(t, s.Send(context.Background(), "alert"))
}
