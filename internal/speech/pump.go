// Package speech is the boundary between a speech front end and a
// conversation. Finalized utterances go in through a queue, replies come
// back out on a channel.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kalambet/tablevoice/internal/dialogue"
)

// Conversation is the part of a dialogue session the adapter drives.
type Conversation interface {
	Handle(ctx context.Context, utterance string) (string, error)
	Step() dialogue.Step
	AgentMessage() string
}

// Reply is one agent line ready to be spoken.
type Reply struct {
	Text string
	Step dialogue.Step
}

// ErrQueueFull is returned by Submit when the queue cannot take more input.
var ErrQueueFull = errors.New("speech: utterance queue full")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("speech: pump closed")

// Pump serializes utterances into a Conversation. A restart skips the
// queue so it can interrupt an in-flight lookup, and it discards every
// utterance still waiting behind it.
type Pump struct {
	conv   Conversation
	logger *slog.Logger

	inbox   chan queued
	replies chan Reply

	// mu guards closed and gen, and is held while a reply is delivered so
	// replies from before a restart never follow the restart reply.
	mu     sync.Mutex
	closed bool
	gen    uint64
}

type queued struct {
	text string
	gen  uint64
}

// NewPump creates a pump with room for queue pending utterances.
func NewPump(conv Conversation, queue int, logger *slog.Logger) *Pump {
	if queue < 1 {
		queue = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		conv:    conv,
		logger:  logger,
		inbox:   make(chan queued, queue),
		replies: make(chan Reply, queue+1),
	}
}

// Replies delivers agent lines in the order they were produced. It is
// closed when Run returns.
func (p *Pump) Replies() <-chan Reply {
	return p.replies
}

// Submit queues a finalized utterance without blocking. A restart is
// handled before Submit returns.
func (p *Pump) Submit(ctx context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if dialogue.IsRestart(text) {
		p.restartLocked(ctx, text)
		return nil
	}
	select {
	case p.inbox <- queued{text: text, gen: p.gen}:
		return nil
	default:
		p.logger.Warn("dropping utterance, queue full")
		return ErrQueueFull
	}
}

func (p *Pump) restartLocked(ctx context.Context, text string) {
	p.gen++
	dropped := 0
drain:
	for {
		select {
		case <-p.inbox:
			dropped++
		default:
			break drain
		}
	}
	if dropped > 0 {
		p.logger.Debug("discarded queued utterances on restart", "count", dropped)
	}

	reply, err := p.conv.Handle(ctx, text)
	if err != nil {
		p.logger.Error("handling restart", "error", err, "kind", dialogue.ErrorKind(err))
		return
	}
	p.deliverLocked(ctx, Reply{Text: reply, Step: p.conv.Step()})
}

// Close stops accepting input. Queued utterances are still handled.
func (p *Pump) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

// Run drains the queue one utterance at a time until the queue is closed
// or ctx is done.
func (p *Pump) Run(ctx context.Context) error {
	defer func() {
		p.Close()
		close(p.replies)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-p.inbox:
			if !ok {
				return nil
			}
			p.handle(ctx, item)
		}
	}
}

func (p *Pump) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.gen
}

func (p *Pump) handle(ctx context.Context, item queued) {
	if !p.current(item.gen) {
		p.logger.Debug("utterance discarded after restart")
		return
	}
	reply, err := p.conv.Handle(ctx, item.text)
	switch {
	case errors.Is(err, dialogue.ErrStale):
		p.logger.Debug("reply discarded after restart")
		return
	case errors.Is(err, dialogue.ErrBusy):
		p.logger.Warn("dropping utterance, conversation busy")
		return
	case err != nil:
		p.logger.Error("handling utterance", "error", err, "kind", dialogue.ErrorKind(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if item.gen != p.gen {
		p.logger.Debug("reply discarded after restart")
		return
	}
	p.deliverLocked(ctx, Reply{Text: reply, Step: p.conv.Step()})
}

func (p *Pump) deliverLocked(ctx context.Context, r Reply) {
	select {
	case p.replies <- r:
	case <-ctx.Done():
	}
}
