package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"chatbridge/internal/history"
	"chatbridge/internal/middleware"
	"chatbridge/internal/prompt"
)

type Service struct {
	adapter  Adapter
	cache    *history.Cache
	composer *prompt.Composer
	mws      *middleware.Chain
	botID    string
	params   middleware.LLMParams
	now      func() time.Time
	logger   *slog.Logger
}

type ServiceOption func(*Service)

func WithMiddlewareChain(chain *middleware.Chain) ServiceOption {
	return func(s *Service) {
		s.mws = chain
	}
}

// WithBotID sets the author id recorded for outbound replies.
func WithBotID(id string) ServiceOption {
	return func(s *Service) {
		if id != "" {
			s.botID = id
		}
	}
}

func WithParams(p middleware.LLMParams) ServiceOption {
	return func(s *Service) {
		s.params = p
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(adapter Adapter, cache *history.Cache, composer *prompt.Composer, opts ...ServiceOption) *Service {
	s := &Service{
		adapter:  adapter,
		cache:    cache,
		composer: composer,
		botID:    composer.BotName,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.botID == "" {
		s.botID = "bot"
	}
	return s
}

func (s *Service) BotID() string { return s.botID }

// Handle records an inbound message, asks the model for an in-character reply
// and records that reply too. Model failures degrade to FallbackReply. A
// message with attachments but no text is recorded and gets an empty Reply.
func (s *Service) Handle(ctx context.Context, in Inbound) (Reply, error) {
	input := strings.TrimSpace(in.Text)
	if input == "" && len(in.Attachments) == 0 {
		return Reply{}, errors.New("empty input")
	}
	s.record(in.ConversationID, in.AuthorID, input, in.Attachments...)
	if input == "" {
		return Reply{}, nil
	}

	params := s.params
	if s.mws != nil {
		e := &middleware.Event{
			Name:           middleware.EventBeforeLLMRequest,
			ConversationID: in.ConversationID,
			AuthorID:       in.AuthorID,
			UserText:       input,
			Params:         &params,
		}
		updated, canceled, err := s.mws.Run(ctx, e)
		if err != nil {
			return Reply{}, err
		}
		if e.Params != nil {
			params = *e.Params
		}
		if canceled != nil {
			if updated == "" {
				updated = FallbackReply
			}
			s.record(in.ConversationID, s.botID, updated)
			return Reply{Text: updated}, nil
		}
		input = updated
	}

	p := s.composer.Chat(s.cache.Recent(in.ConversationID, 0), input)
	answer, err := s.adapter.Generate(ctx, p, &params)
	answer = strings.TrimSpace(answer)
	if err != nil || answer == "" {
		if err == nil {
			err = errors.New("empty response from model")
		}
		s.logger.Warn("model call failed", "conversation", in.ConversationID, "error", err)
		answer = FallbackReply
	} else if s.mws != nil {
		e := &middleware.Event{
			Name:           middleware.EventAfterLLMResponse,
			ConversationID: in.ConversationID,
			AuthorID:       in.AuthorID,
			UserText:       input,
			LLMText:        answer,
			Params:         &params,
		}
		updated, _, err := s.mws.Run(ctx, e)
		if err != nil {
			return Reply{}, err
		}
		if updated != "" {
			answer = updated
		}
	}

	s.record(in.ConversationID, s.botID, answer)
	return Reply{Text: answer}, nil
}

// Draw asks the model for an image URL matching the description.
func (s *Service) Draw(ctx context.Context, in Inbound) (Reply, error) {
	desc := strings.TrimSpace(in.Text)
	if desc == "" {
		return Reply{}, errors.New("empty description")
	}
	s.record(in.ConversationID, in.AuthorID, desc, in.Attachments...)

	params := s.params
	url, err := s.adapter.Generate(ctx, s.composer.Draw(desc), &params)
	url = strings.TrimSpace(url)
	s.logger.Info("draw url", "conversation", in.ConversationID, "url", url)

	reply := Reply{Text: DrawFallbackReply}
	if err != nil {
		s.logger.Warn("draw call failed", "conversation", in.ConversationID, "error", err)
	} else if prompt.IsImageURL(url) {
		reply = Reply{Text: DrawResultText, ImageURL: url}
	}

	if reply.ImageURL != "" {
		s.record(in.ConversationID, s.botID, reply.Text, map[string]string{"url": reply.ImageURL})
	} else {
		s.record(in.ConversationID, s.botID, reply.Text)
	}
	return reply, nil
}

// History returns the most recent count messages (all when count <= 0).
func (s *Service) History(conversationID string, count int) []history.Message {
	return s.cache.Recent(conversationID, count)
}

func (s *Service) record(conversationID, authorID, content string, attachments ...any) {
	msg := history.Message{
		ConversationID: conversationID,
		AuthorID:       authorID,
		Content:        content,
		Timestamp:      s.now().Format(time.RFC3339Nano),
	}
	for _, a := range attachments {
		raw, err := history.Attachment(a)
		if err != nil {
			s.logger.Warn("dropping attachment", "conversation", conversationID, "error", err)
			continue
		}
		msg.Attachments = append(msg.Attachments, raw)
	}
	s.cache.Add(conversationID, msg)
}
