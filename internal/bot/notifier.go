package bot

import (
	"context"
	"fmt"
	"log"

	"bot-vinted/internal/alerts"
	"bot-vinted/internal/monitor"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier envia alertas para um chat do Telegram
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier cria um notifier para o chat informado
func NewNotifier(api *tgbotapi.BotAPI, chatID int64) *Notifier {
	return &Notifier{api: api, chatID: chatID}
}

// Send envia o texto ao chat. Sem chat configurado o alerta vai apenas para o log.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n.chatID == 0 || n.api == nil {
		log.Printf("[bot] chat de alertas não configurado (use /set telegram_chat_id <id>):\n%s", text)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("erro ao enviar mensagem para o chat %d: %w", n.chatID, err)
	}
	return nil
}

// NotifierFactory cria notifiers do Telegram para o monitor
func NotifierFactory(api *tgbotapi.BotAPI) monitor.NotifierFactory {
	return func(chatID int64) alerts.Notifier {
		return NewNotifier(api, chatID)
	}
}
