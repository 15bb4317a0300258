package notification

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Notifier receives transfer lifecycle events. Implementations must not
// block the scheduler; delivery failures are logged and swallowed.
type Notifier interface {
	TransferStarted(wallet, fromChain, toChain, token, amount string)
	TransferCompleted(wallet, provider, txRef string)
	TransferFailed(wallet, errKind, detail string)
	SystemEvent(msg string)
}

// TelegramNotifier pushes events to a telegram group chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func NewTelegramNotifier(botToken, chatGroup string, logger *zap.Logger) (*TelegramNotifier, error) {
	if botToken == "" || chatGroup == "" {
		return nil, errors.New("telegram bot token or chat group is not set")
	}

	chatID, err := strconv.ParseInt(chatGroup, 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "invalid telegram chat group id")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	logger.Info("Telegram notifier authorized", zap.String("account", bot.Self.UserName))

	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) TransferStarted(wallet, fromChain, toChain, token, amount string) {
	n.send(fmt.Sprintf("🚀 Bridge started\nWallet: %s\nRoute: %s -> %s\nToken: %s\nAmount: %s",
		wallet, fromChain, toChain, token, amount))
}

func (n *TelegramNotifier) TransferCompleted(wallet, provider, txRef string) {
	n.send(fmt.Sprintf("✅ Bridge completed\nWallet: %s\nProvider: %s\nTx: %s",
		wallet, provider, txRef))
}

func (n *TelegramNotifier) TransferFailed(wallet, errKind, detail string) {
	n.send(fmt.Sprintf("❌ Bridge failed\nWallet: %s\nReason: %s\n%s",
		wallet, errKind, detail))
}

func (n *TelegramNotifier) SystemEvent(msg string) {
	n.send(msg)
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn("Failed to send telegram message", zap.Error(err))
	}
}

// NopNotifier is used when telegram credentials are not configured.
type NopNotifier struct{}

func (NopNotifier) TransferStarted(wallet, fromChain, toChain, token, amount string) {}
func (NopNotifier) TransferCompleted(wallet, provider, txRef string)                 {}
func (NopNotifier) TransferFailed(wallet, errKind, detail string)                    {}
func (NopNotifier) SystemEvent(msg string)                                           {}
