package bot

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"mindconnect_booking/internal/bot/handlers"
	"mindconnect_booking/internal/bot/service"
	"mindconnect_booking/internal/middleware"
	"mindconnect_booking/pkg/logger"
	"mindconnect_booking/pkg/metrics"
)

// Handler обработчик одного типа обновлений
type Handler interface {
	Handle(ctx context.Context, update *models.Update) error
}

// Dispatcher управляет обработкой входящих обновлений от Telegram
type Dispatcher struct {
	service *service.Service
	limiter *middleware.ChatRateLimiter
	log     *logger.Logger

	startHandler        Handler
	contactHandler      Handler
	callbackHandler     Handler
	appointmentsHandler Handler
	defaultHandler      Handler
}

// NewDispatcher создает новый диспетчер обновлений. limiter может быть nil.
func NewDispatcher(svc *service.Service, limiter *middleware.ChatRateLimiter, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		service:             svc,
		limiter:             limiter,
		log:                 log,
		startHandler:        handlers.NewStartHandler(svc),
		contactHandler:      handlers.NewContactHandler(svc),
		callbackHandler:     handlers.NewCallbackHandler(svc),
		appointmentsHandler: handlers.NewAppointmentsHandler(svc),
		defaultHandler:      handlers.NewDefaultHandler(svc),
	}
}

// HandleUpdate обрабатывает входящее обновление от Telegram
func (d *Dispatcher) HandleUpdate(ctx context.Context, update *models.Update) {
	name, handler, chatID := d.route(update)
	if handler == nil {
		d.log.Debug("Received unsupported update type", logger.Int64("update_id", update.ID))
		metrics.RecordBotUpdate("unsupported", "ignored")
		return
	}

	if d.limiter != nil && !d.limiter.AllowChat(chatID) {
		d.log.Warn("Chat rate limit exceeded", logger.Int64("chat_id", chatID))
		metrics.RecordBotUpdate(name, "rate_limited")
		if update.CallbackQuery != nil {
			d.service.AnswerCallbackQuery(ctx, update.CallbackQuery.ID, "Слишком много запросов, подождите немного")
		}
		return
	}

	if err := handler.Handle(ctx, update); err != nil {
		d.log.WithContext(ctx).Warn("Update handling failed",
			logger.String("handler", name),
			logger.Int64("chat_id", chatID),
			logger.Error(err),
		)
		metrics.RecordBotUpdate(name, "error")
		return
	}

	metrics.RecordBotUpdate(name, "ok")
}

// DefaultHandler позволяет использовать диспетчер в режиме long polling
func (d *Dispatcher) DefaultHandler(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	d.HandleUpdate(ctx, update)
}

func (d *Dispatcher) route(update *models.Update) (string, Handler, int64) {
	if update.CallbackQuery != nil {
		return "callback", d.callbackHandler, handlers.CallbackChatID(update.CallbackQuery)
	}

	msg := update.Message
	if msg == nil {
		return "", nil, 0
	}

	if msg.Contact != nil {
		return "contact", d.contactHandler, msg.Chat.ID
	}

	switch command(msg.Text) {
	case "/start":
		return "start", d.startHandler, msg.Chat.ID
	case "/my":
		return "appointments", d.appointmentsHandler, msg.Chat.ID
	default:
		return "default", d.defaultHandler, msg.Chat.ID
	}
}

// command выделяет команду, отбрасывая аргументы и @имя_бота
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd
}
