package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/scout/internal/observability"
)

// telegramAPI answers getMe and returns no updates.
type telegramAPI struct {
	polls atomic.Int32
}

func (f *telegramAPI) Do(req *http.Request) (*http.Response, error) {
	body := `{"ok":true,"result":[]}`
	if strings.HasSuffix(req.URL.Path, "/getMe") {
		body = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Scout","username":"scout_bot"}}`
	} else {
		f.polls.Add(1)
		time.Sleep(5 * time.Millisecond)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func TestTelegramStartStopsPolling(t *testing.T) {
	api := &telegramAPI{}
	bot, err := tgbotapi.NewBotAPIWithClient("token", tgbotapi.APIEndpoint, api)
	require.NoError(t, err)
	assert.Equal(t, "scout_bot", bot.Self.UserName)

	tg := &TelegramGateway{Bot: bot, Agent: &fakeAgent{}, Logger: observability.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- tg.Start(ctx) }()

	require.Eventually(t, func() bool { return api.polls.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("telegram gateway did not stop")
	}

	// the poll loop exits once the shutdown is seen
	after := api.polls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, api.polls.Load(), after+1)
	assert.NoError(t, tg.Stop())
}
