package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrsingh-rishi/voicechat/llm"
	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/rs/zerolog/log"
)

const DefaultReplyDelay = time.Second

type TextRenderer interface {
	RenderText(content string, sender model.Sender) (model.Message, error)
}

// ReplyWorker answers every scheduled user message with a counterpart text
// message after a fixed delay. Replies are rendered in scheduling order.
type ReplyWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	Replier  llm.Replier
	Delay    time.Duration
	Renderer TextRenderer
	requests chan pendingReply
	wg       sync.WaitGroup
}

type pendingReply struct {
	message model.Message
	due     time.Time
}

func NewReplyWorker(replier llm.Replier, delay time.Duration, renderer TextRenderer) (*ReplyWorker, error) {
	if replier == nil {
		return nil, fmt.Errorf("replier is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if delay < 0 {
		return nil, fmt.Errorf("reply delay must not be negative")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ReplyWorker{
		ctx:      ctx,
		cancel:   cancel,
		Replier:  replier,
		Delay:    delay,
		Renderer: renderer,
		requests: make(chan pendingReply, 16),
	}, nil
}

func (w *ReplyWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ctx.Done():
				return
			case p := <-w.requests:
				w.reply(p)
			}
		}
	}()
}

// Schedule queues a reply to m, due Delay after this call. It is dropped once
// the worker is stopped.
func (w *ReplyWorker) Schedule(m model.Message) {
	select {
	case w.requests <- pendingReply{message: m, due: time.Now().Add(w.Delay)}:
	case <-w.ctx.Done():
	}
}

func (w *ReplyWorker) reply(p pendingReply) {
	m := p.message
	timer := time.NewTimer(time.Until(p.due))
	defer timer.Stop()
	select {
	case <-w.ctx.Done():
		return
	case <-timer.C:
	}

	text, err := w.Replier.Reply(w.ctx, m)
	if err != nil {
		if w.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("component", "workers").Str("message_id", m.ID).Msg("reply failed, echoing input")
		text = llm.Echo(m)
	}
	if _, err := w.Renderer.RenderText(text, model.SenderBot); err != nil {
		log.Debug().Err(err).Str("component", "workers").Str("message_id", m.ID).Msg("reply not delivered")
	}
}

// Stop cancels pending replies and waits for in-flight ones to return.
func (w *ReplyWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}
