package dispatch

import (
	"context"
	"strings"
	"sync"

	"github.com/mrsingh-rishi/voicechat/capture"
	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	UnsupportedTooltip = "您的浏览器不支持语音功能（建议使用 Chrome/Edge）"

	// VoiceTargetPrefix prefixes the target of events raised on a voice
	// bubble, followed by the message id.
	VoiceTargetPrefix = "voice:"
)

// Event is a DOM event forwarded by the page.
type Event struct {
	Target string `json:"target"`
	Name   string `json:"event"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() capture.State
}

type Renderer interface {
	RenderText(content string, sender model.Sender) (model.Message, error)
	TogglePlayback(messageID string) error
	PlaybackEnded(messageID string) error
}

type View interface {
	Bind(elements model.Elements) error
	DisableVoice(title string) error
	ClearInput() error
}

type binding struct {
	target string
	event  string
}

type handler func(ctx context.Context, ev Event)

// Dispatcher routes page events to text submission, voice capture or
// playback.
type Dispatcher struct {
	recorder Recorder
	renderer Renderer
	view     View

	mu       sync.Mutex
	bound    map[string]bool
	handlers map[binding]handler
	wg       sync.WaitGroup
}

func New(recorder Recorder, renderer Renderer, view View) (*Dispatcher, error) {
	if recorder == nil {
		return nil, errors.New("dispatch: recorder is nil")
	}
	if renderer == nil {
		return nil, errors.New("dispatch: renderer is nil")
	}
	if view == nil {
		return nil, errors.New("dispatch: view is nil")
	}
	return &Dispatcher{
		recorder: recorder,
		renderer: renderer,
		view:     view,
		bound:    map[string]bool{},
		handlers: map[binding]handler{},
	}, nil
}

// Bind wires handlers to the given elements. Binding the same voice button
// twice is a no-op. When voiceSupported is false the voice button is
// disabled and only text input is bound.
func (d *Dispatcher) Bind(els model.Elements, voiceSupported bool) error {
	d.mu.Lock()
	if d.bound[els.VoiceButton] {
		d.mu.Unlock()
		log.Debug().Str("component", "dispatch").Str("element", els.VoiceButton).Msg("already bound")
		return nil
	}
	d.bound[els.VoiceButton] = true

	d.handlers[binding{els.SendButton, "click"}] = d.sendText
	d.handlers[binding{els.TextInput, "keypress"}] = func(ctx context.Context, ev Event) {
		if ev.Key == "Enter" {
			d.sendText(ctx, ev)
		}
	}
	if voiceSupported {
		d.handlers[binding{els.VoiceButton, "mousedown"}] = d.startRecording
		d.handlers[binding{els.VoiceButton, "mouseup"}] = d.stopRecording
		d.handlers[binding{els.VoiceButton, "mouseleave"}] = func(ctx context.Context, ev Event) {
			if d.recorder.State() == capture.StateRecording {
				d.stopRecording(ctx, ev)
			}
		}
	}
	d.mu.Unlock()

	if err := d.view.Bind(els); err != nil {
		return errors.Wrap(err, "dispatch: bind view")
	}
	if !voiceSupported {
		if err := d.view.DisableVoice(UnsupportedTooltip); err != nil {
			return errors.Wrap(err, "dispatch: disable voice")
		}
	}
	return nil
}

// Dispatch runs the handler bound to ev and reports whether there was one.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) bool {
	if id, ok := strings.CutPrefix(ev.Target, VoiceTargetPrefix); ok {
		return d.dispatchPlayback(id, ev)
	}

	d.mu.Lock()
	h, ok := d.handlers[binding{ev.Target, ev.Name}]
	d.mu.Unlock()
	if !ok {
		log.Debug().Str("component", "dispatch").Str("target", ev.Target).Str("event", ev.Name).Msg("unbound event")
		return false
	}
	h(ctx, ev)
	return true
}

func (d *Dispatcher) dispatchPlayback(id string, ev Event) bool {
	var err error
	switch ev.Name {
	case "click":
		err = d.renderer.TogglePlayback(id)
	case "ended":
		err = d.renderer.PlaybackEnded(id)
	default:
		return false
	}
	if err != nil {
		log.Debug().Err(err).Str("component", "dispatch").Str("message_id", id).Msg("playback event")
	}
	return true
}

func (d *Dispatcher) sendText(_ context.Context, ev Event) {
	text := strings.TrimSpace(ev.Value)
	if text == "" {
		return
	}
	if _, err := d.renderer.RenderText(text, model.SenderUser); err != nil {
		log.Warn().Err(err).Str("component", "dispatch").Msg("render text")
	}
	if err := d.view.ClearInput(); err != nil {
		log.Debug().Err(err).Str("component", "dispatch").Msg("clear input")
	}
}

// Device operations block on the page answering, so they run off the
// event loop that delivers those answers.
func (d *Dispatcher) startRecording(ctx context.Context, _ Event) {
	d.spawn(ctx, "start", d.recorder.Start)
}

func (d *Dispatcher) stopRecording(ctx context.Context, _ Event) {
	d.spawn(ctx, "stop", d.recorder.Stop)
}

func (d *Dispatcher) spawn(ctx context.Context, op string, fn func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := fn(ctx)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrBusy), errors.Is(err, capture.ErrNotRecording), errors.Is(err, capture.ErrUnsupported),
			errors.Is(err, capture.ErrClosed):
			log.Debug().Err(err).Str("component", "dispatch").Str("op", op).Msg("ignored")
		case errors.Is(err, capture.ErrTooShort):
			log.Info().Str("component", "dispatch").Str("op", op).Msg("recording too short")
		default:
			log.Warn().Err(err).Str("component", "dispatch").Str("op", op).Msg("voice capture")
		}
	}()
}

// Wait blocks until every spawned device operation has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
