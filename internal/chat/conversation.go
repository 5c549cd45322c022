// Package chat implements the chat client: a message log driven by questions
// sent to the QA service.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

// Asker answers one question.
type Asker interface {
	Ask(ctx context.Context, question string) (*entities.Answer, error)
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithOnChange registers a callback run after every change to the log or busy flag.
func WithOnChange(fn func()) Option {
	return func(c *Conversation) { c.onChange = fn }
}

// WithBotName sets the name shown in the typing indicator.
func WithBotName(name string) Option {
	return func(c *Conversation) { c.botName = name }
}

// Conversation is an append-only message log seeded with a greeting.
// Each submission takes a generation number; only the answer to the latest
// submission is appended, so the log stays in submission order.
type Conversation struct {
	asker    Asker
	logger   *zap.Logger
	onChange func()
	botName  string

	mu         sync.Mutex
	messages   []entities.Message
	busy       bool
	generation uint64

	inflight sync.WaitGroup
}

// NewConversation creates a conversation whose first message is greeting.
func NewConversation(asker Asker, greeting string, logger *zap.Logger, opts ...Option) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conversation{
		asker:    asker,
		logger:   logger,
		botName:  "TEK17 Chatbot",
		messages: []entities.Message{{Sender: entities.SenderBot, Text: greeting}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends question unless it is blank. It returns false when nothing happened.
// The answer arrives asynchronously; use Wait to block until it settles.
func (c *Conversation) Submit(ctx context.Context, question string) bool {
	if strings.TrimSpace(question) == "" {
		return false
	}

	c.mu.Lock()
	c.messages = append(c.messages, entities.Message{Sender: entities.SenderUser, Text: question})
	c.generation++
	gen := c.generation
	c.busy = true
	c.mu.Unlock()
	c.changed()

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		answer, err := c.asker.Ask(ctx, question)
		c.settle(gen, answer, err)
	}()
	return true
}

func (c *Conversation) settle(gen uint64, answer *entities.Answer, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding stale answer", zap.Uint64("generation", gen))
		return
	}
	if err == nil && answer == nil {
		err = errors.New("empty answer")
	}
	if err != nil {
		c.logger.Error("Feil ved henting av svar", zap.Error(err))
	} else {
		c.messages = append(c.messages, entities.Message{
			Sender: entities.SenderBot,
			Text:   answer.Result,
			Source: answer.Source,
		})
	}
	c.busy = false
	c.mu.Unlock()
	c.changed()
}

func (c *Conversation) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// Wait blocks until every submitted question has settled.
func (c *Conversation) Wait() {
	c.inflight.Wait()
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []entities.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entities.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Busy reports whether the latest question is still waiting for an answer.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Render writes the log as plain text, newest last, followed by the typing
// indicator while busy.
func (c *Conversation) Render(w io.Writer) error {
	if _, err := c.RenderFrom(w, 0); err != nil {
		return err
	}
	if c.Busy() {
		if _, err := fmt.Fprintf(w, "%s skriver...\n", c.botName); err != nil {
			return err
		}
	}
	return nil
}

// RenderFrom writes the messages from index from onwards and returns the log
// length, which the caller passes back in to print only what is new.
func (c *Conversation) RenderFrom(w io.Writer, from int) (int, error) {
	messages := c.Messages()
	if from < 0 {
		from = 0
	}
	for i := from; i < len(messages); i++ {
		if err := renderMessage(w, messages[i]); err != nil {
			return i, err
		}
	}
	return len(messages), nil
}

func renderMessage(w io.Writer, m entities.Message) error {
	prefix := "bot> "
	if m.Sender == entities.SenderUser {
		prefix = "du>  "
	}
	if _, err := fmt.Fprintf(w, "%s%s\n", prefix, m.Text); err != nil {
		return err
	}
	if cite := m.Citation(); cite != "" {
		if _, err := fmt.Fprintf(w, "     %s\n", cite); err != nil {
			return err
		}
	}
	return nil
}
