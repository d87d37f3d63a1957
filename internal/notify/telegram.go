package notify

import (
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Sender delivers one rendered message. The Telegram implementation is the
// only production one; tests substitute their own.
type Sender interface {
	Send(chatID int64, text string) error
}

type telegramSender struct {
	bot *tele.Bot
}

// newTelegramSender builds a send-only bot: no poller, bounded HTTP client.
func newTelegramSender(token string) (Sender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: &http.Client{Timeout: 8 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &telegramSender{bot: b}, nil
}

func (t *telegramSender) Send(chatID int64, text string) error {
	_, err := t.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	return err
}
