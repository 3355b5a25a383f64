// Package telegram relays Telegram group and private chats to the chat
// service.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"chatbridge/internal/chat"
	"chatbridge/internal/history"

	tele "gopkg.in/telebot.v3"
)

const (
	// maxMessageLen stays under Telegram's 4096 character limit.
	maxMessageLen = 4000

	imageAttempts     = 3
	defaultRetryDelay = 10 * time.Second
	defaultHistoryN   = 10

	drawAlias    = "/画图"
	errorReply   = "⚠️ 出错了，请稍后再试。"
	emptyHistory = "暂无历史消息。"
)

// Options configures the adapter. Token is required.
type Options struct {
	Token      string
	Timeout    time.Duration
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// sender is the part of *tele.Bot used for outbound messages.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Adapter runs the chat service as a Telegram bot.
type Adapter struct {
	bot        *tele.Bot
	api        sender
	notify     func(tele.Recipient, tele.ChatAction)
	service    *chat.Service
	logger     *slog.Logger
	timeout    time.Duration
	retryDelay time.Duration
	ctx        context.Context
}

func New(service *chat.Service, opts Options) (*Adapter, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram token is required")
	}

	a := newAdapter(service, nil, opts)
	b, err := tele.NewBot(tele.Settings{
		Token:  opts.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			a.logger.Error("handler failed", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	a.bot = b
	a.api = b
	a.notify = func(to tele.Recipient, action tele.ChatAction) { _ = b.Notify(to, action) }
	a.setupHandlers()
	return a, nil
}

func newAdapter(service *chat.Service, api sender, opts Options) *Adapter {
	a := &Adapter{
		api:        api,
		notify:     func(tele.Recipient, tele.ChatAction) {},
		service:    service,
		logger:     opts.Logger,
		timeout:    opts.Timeout,
		retryDelay: opts.RetryDelay,
		ctx:        context.Background(),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.timeout <= 0 {
		a.timeout = 2 * time.Minute
	}
	if a.retryDelay <= 0 {
		a.retryDelay = defaultRetryDelay
	}
	return a
}

func (a *Adapter) ID() string {
	return "telegram"
}

// Start polls for updates until ctx is canceled.
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx = ctx
	a.logger.Info("starting bot", "username", a.bot.Me.Username)

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down")
		a.bot.Stop()
	}()

	a.bot.Start()
	return nil
}

func (a *Adapter) setupHandlers() {
	a.bot.Handle("/start", func(c tele.Context) error {
		return c.Send("👋 你好！直接发消息和我聊天，/draw <描述> 画图，/history [n] 查看最近的消息。")
	})
	a.bot.Handle("/draw", func(c tele.Context) error {
		return a.handleDraw(c, c.Message().Payload)
	})
	a.bot.Handle("/history", a.handleHistory)
	a.bot.Handle(tele.OnText, a.handleText)
	a.bot.Handle(tele.OnPhoto, a.handlePhoto)
}

func (a *Adapter) handleText(c tele.Context) error {
	text := c.Text()
	if desc, ok := drawPayload(text); ok {
		return a.handleDraw(c, desc)
	}
	if strings.HasPrefix(text, "/") {
		return nil
	}

	a.notify(c.Chat(), tele.Typing)
	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()

	reply, err := a.service.Handle(ctx, inbound(c, text))
	if err != nil {
		a.logger.Error("failed to handle message", "chat", c.Chat().ID, "error", err)
		return c.Send(errorReply)
	}
	return a.sendLongMessage(c.Chat(), reply.Text)
}

// handlePhoto records the photo with its caption. Only captioned photos are
// answered.
func (a *Adapter) handlePhoto(c tele.Context) error {
	caption := strings.TrimSpace(c.Message().Caption)
	if caption != "" {
		a.notify(c.Chat(), tele.Typing)
	}
	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()

	reply, err := a.service.Handle(ctx, inbound(c, caption))
	if err != nil {
		a.logger.Error("failed to handle photo", "chat", c.Chat().ID, "error", err)
		return a.sendLongMessage(c.Chat(), errorReply)
	}
	if reply.Text == "" {
		return nil
	}
	return a.sendLongMessage(c.Chat(), reply.Text)
}

func (a *Adapter) handleDraw(c tele.Context, desc string) error {
	if strings.TrimSpace(desc) == "" {
		return c.Send("用法：/draw <图片描述>")
	}

	a.notify(c.Chat(), tele.UploadingPhoto)
	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()

	reply, err := a.service.Draw(ctx, inbound(c, desc))
	if err != nil {
		a.logger.Error("failed to draw", "chat", c.Chat().ID, "error", err)
		return c.Send(errorReply)
	}
	if reply.ImageURL == "" {
		return a.sendLongMessage(c.Chat(), reply.Text)
	}
	return a.sendImage(ctx, c.Chat(), reply)
}

func (a *Adapter) handleHistory(c tele.Context) error {
	n, err := historyCount(c.Message().Payload)
	if err != nil {
		return c.Send("用法：/history [条数]")
	}
	msgs := a.service.History(strconv.FormatInt(c.Chat().ID, 10), n)
	return a.sendLongMessage(c.Chat(), formatHistory(msgs))
}

// sendImage uploads the generated image by URL. The image host may still be
// rendering, so failed uploads are retried before falling back to a link.
func (a *Adapter) sendImage(ctx context.Context, to tele.Recipient, reply chat.Reply) error {
	photo := &tele.Photo{File: tele.FromURL(reply.ImageURL), Caption: reply.Text}
	for attempt := 1; attempt <= imageAttempts; attempt++ {
		_, err := a.api.Send(to, photo)
		if err == nil {
			return nil
		}
		a.logger.Warn("image upload failed, waiting for image to render", "attempt", attempt, "error", err)
		if attempt == imageAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return a.sendLongMessage(to, reply.Text+"\n"+reply.ImageURL)
		case <-time.After(a.retryDelay):
		}
	}
	return a.sendLongMessage(to, reply.Text+"\n"+reply.ImageURL)
}

// sendLongMessage splits and sends text if it exceeds Telegram's limit.
func (a *Adapter) sendLongMessage(to tele.Recipient, text string, opts ...interface{}) error {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := a.api.Send(to, chunk, opts...); err != nil {
			return err
		}
	}
	return nil
}

func inbound(c tele.Context, text string) chat.Inbound {
	in := chat.Inbound{
		ConversationID: strconv.FormatInt(c.Chat().ID, 10),
		Text:           text,
	}
	if u := c.Sender(); u != nil {
		in.AuthorID = strconv.FormatInt(u.ID, 10)
	}
	if m := c.Message(); m != nil && m.Photo != nil {
		in.Attachments = append(in.Attachments, map[string]string{"file_id": m.Photo.FileID})
	}
	return in
}

// drawPayload recognizes the "/画图 <description>" alias, which the command
// router does not match since it only accepts ASCII command names.
func drawPayload(text string) (string, bool) {
	rest, ok := strings.CutPrefix(text, drawAlias)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(rest, "@") {
		_, rest, _ = strings.Cut(rest, " ")
	} else if rest != "" && !strings.HasPrefix(rest, " ") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func historyCount(payload string) (int, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return defaultHistoryN, nil
	}
	n, err := strconv.Atoi(payload)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", payload)
	}
	return n, nil
}

func formatHistory(msgs []history.Message) string {
	if len(msgs) == 0 {
		return emptyHistory
	}
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", m.Timestamp, m.AuthorID, m.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// splitMessage cuts text into chunks of at most max runes, preferring to
// break after a newline in the second half of a chunk.
func splitMessage(text string, max int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > max {
		cut := max
		for i := max - 1; i >= max/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
