package render

import (
	"sync"

	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrUnknownMessage = errors.New("render: unknown voice message")

// View is the conversation surface messages are pushed to.
type View interface {
	AppendMessage(m model.Message) error
	ScrollToBottom() error
	SetPlayback(messageID string, playing bool) error
}

// ReplyScheduler produces the counterpart reply to a user message.
type ReplyScheduler interface {
	Schedule(m model.Message)
}

// Renderer appends messages to the transcript and the view, and wires the
// playback toggle of voice bubbles.
type Renderer struct {
	transcript *model.Transcript
	view       View

	// emit keeps transcript order and view order identical
	emit sync.Mutex

	mu      sync.Mutex
	replies ReplyScheduler
	players map[string]*Playback
}

func NewRenderer(transcript *model.Transcript, view View) (*Renderer, error) {
	if transcript == nil {
		return nil, errors.New("render: transcript is nil")
	}
	if view == nil {
		return nil, errors.New("render: view is nil")
	}
	return &Renderer{
		transcript: transcript,
		view:       view,
		players:    map[string]*Playback{},
	}, nil
}

// SetReplyScheduler installs the scheduler invoked after every user message.
func (r *Renderer) SetReplyScheduler(s ReplyScheduler) {
	r.mu.Lock()
	r.replies = s
	r.mu.Unlock()
}

func (r *Renderer) RenderText(content string, sender model.Sender) (model.Message, error) {
	return r.render(model.NewTextMessage(sender, content))
}

func (r *Renderer) RenderVoice(audioURL string, duration int, transcript string, sender model.Sender) (model.Message, error) {
	m := model.NewVoiceMessage(sender, model.VoiceContent{
		AudioURL:   audioURL,
		Duration:   duration,
		Transcript: transcript,
	})
	r.mu.Lock()
	r.players[m.ID] = &Playback{}
	r.mu.Unlock()
	return r.render(m)
}

func (r *Renderer) render(m model.Message) (model.Message, error) {
	r.emit.Lock()
	r.transcript.Append(m)
	err := r.view.AppendMessage(m)
	if err == nil {
		err = r.view.ScrollToBottom()
	}
	r.emit.Unlock()
	if err != nil {
		log.Warn().Err(err).Str("component", "render").Str("message_id", m.ID).Msg("view update failed")
	}

	if m.Sender == model.SenderUser {
		r.mu.Lock()
		replies := r.replies
		r.mu.Unlock()
		if replies != nil {
			replies.Schedule(m)
		}
	}
	return m, errors.Wrap(err, "render: update view")
}

// TogglePlayback flips the playback state of a voice bubble.
func (r *Renderer) TogglePlayback(messageID string) error {
	p, err := r.player(messageID)
	if err != nil {
		return err
	}
	return r.view.SetPlayback(messageID, p.Toggle())
}

// PlaybackEnded resets a voice bubble to paused, however playback ended.
func (r *Renderer) PlaybackEnded(messageID string) error {
	p, err := r.player(messageID)
	if err != nil {
		return err
	}
	p.Reset()
	return r.view.SetPlayback(messageID, false)
}

func (r *Renderer) player(messageID string) (*Playback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[messageID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMessage, "id %q", messageID)
	}
	return p, nil
}
