package capture

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mrsingh-rishi/voicechat/clips"
	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/mrsingh-rishi/voicechat/queue"
	"github.com/mrsingh-rishi/voicechat/stt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrBusy             = errors.New("capture: a recording session is already active")
	ErrNotRecording     = errors.New("capture: not recording")
	ErrTooShort         = errors.New("capture: recording too short")
	ErrUnsupported      = errors.New("capture: voice capture is not supported")
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrClosed           = errors.New("capture: coordinator closed")
)

const (
	AlertPermission    = "请允许麦克风权限后重试"
	AlertDevice        = "录音功能异常"
	AlertTooShort      = "录音时间太短，请至少录制1秒"
	FallbackTranscript = "语音转文字失败"

	DefaultMinDuration = time.Second
)

//go:generate mockgen -destination=mock_capture_test.go -package=capture github.com/mrsingh-rishi/voicechat/capture Microphone,AudioCapture

// Microphone grants access to the user's audio input.
type Microphone interface {
	// RequestAccess blocks until the user grants or denies access. A denial
	// is reported as ErrPermissionDenied.
	RequestAccess(ctx context.Context) error
	// Record opens an audio-capture handle and starts recording.
	Record(ctx context.Context) (AudioCapture, error)
}

// AudioCapture is the audio-capture handle of one recording.
type AudioCapture interface {
	// Stop blocks until every recorded fragment has been delivered and
	// returns the container MIME type of the recording.
	Stop(ctx context.Context) (string, error)
	Release()
}

type ClipStore interface {
	Put(data []byte, contentType string) (clips.Clip, error)
}

// Indicator is the part of the view the coordinator drives directly.
type Indicator interface {
	Alert(text string) error
	SetRecording(active bool) error
}

type VoiceRenderer interface {
	RenderVoice(audioURL string, duration int, transcript string, sender model.Sender) (model.Message, error)
}

type Options struct {
	Microphone Microphone
	// Recognizer is the speech-to-text capability. Nil means voice input is
	// unsupported.
	Recognizer  stt.Recognizer
	Clips       ClipStore
	View        Indicator
	Renderer    VoiceRenderer
	Language    string
	MinDuration time.Duration
	Now         func() time.Time
}

type session struct {
	started   time.Time
	capture   AudioCapture
	stream    stt.Stream
	fragments *queue.Queue[model.AudioChunk]

	releaseOnce sync.Once
}

func (s *session) release() {
	s.releaseOnce.Do(func() {
		if s.capture != nil {
			s.capture.Release()
		}
		if s.stream != nil {
			if err := s.stream.Close(); err != nil {
				log.Debug().Err(err).Str("component", "capture").Msg("close transcription stream")
			}
		}
	})
}

// Coordinator owns at most one recording session and resolves it into a
// voice message.
type Coordinator struct {
	mic         Microphone
	recognizer  stt.Recognizer
	clips       ClipStore
	view        Indicator
	renderer    VoiceRenderer
	language    string
	minDuration time.Duration
	now         func() time.Time

	mu      sync.Mutex
	state   State
	last    State
	session *session
	closed  bool
}

func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Microphone == nil {
		return nil, errors.New("capture: microphone is required")
	}
	if opts.Clips == nil {
		return nil, errors.New("capture: clip store is required")
	}
	if opts.View == nil {
		return nil, errors.New("capture: view is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("capture: renderer is required")
	}
	if opts.Language == "" {
		opts.Language = stt.DefaultLanguage
	}
	if opts.MinDuration <= 0 {
		opts.MinDuration = DefaultMinDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		mic:         opts.Microphone,
		recognizer:  opts.Recognizer,
		clips:       opts.Clips,
		view:        opts.View,
		renderer:    opts.Renderer,
		language:    opts.Language,
		minDuration: opts.MinDuration,
		now:         opts.Now,
		state:       StateIdle,
		last:        StateIdle,
	}, nil
}

func (c *Coordinator) Supported() bool {
	return c.recognizer != nil
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastOutcome is the terminal state of the most recent session.
func (c *Coordinator) LastOutcome() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Coordinator) Start(ctx context.Context) error {
	if !c.Supported() {
		return ErrUnsupported
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateRequestingPermission
	c.mu.Unlock()

	if err := c.mic.RequestAccess(ctx); err != nil {
		return c.fail(err)
	}

	// Fragments may arrive as soon as the recorder starts, before both
	// handles are open.
	s := &session{fragments: queue.New[model.AudioChunk]()}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	var (
		capture AudioCapture
		stream  stt.Stream
		g       errgroup.Group
	)
	g.Go(func() error {
		ac, err := c.mic.Record(ctx)
		if err != nil {
			return errors.Wrap(err, "open audio capture")
		}
		capture = ac
		return nil
	})
	g.Go(func() error {
		s, err := c.recognizer.Start(ctx, stt.Options{Language: c.language, InterimResults: false})
		if err != nil {
			log.Warn().Err(err).Str("component", "capture").Msg("transcription unavailable, falling back")
			return nil
		}
		stream = s
		return nil
	})
	if err := g.Wait(); err != nil {
		(&session{capture: capture, stream: stream}).release()
		return c.fail(err)
	}

	c.mu.Lock()
	s.capture = capture
	s.stream = stream
	if c.closed || c.session != s {
		if c.session == s {
			c.session = nil
		}
		c.mu.Unlock()
		s.release()
		return ErrClosed
	}
	s.started = c.now()
	backlog := s.fragments.Drain()
	for _, chunk := range backlog {
		s.fragments.Enqueue(chunk)
		c.forward(s, chunk)
	}
	c.state = StateRecording
	c.mu.Unlock()

	c.setRecording(true)
	log.Debug().Str("component", "capture").Msg("recording started")
	return nil
}

// Feed appends a recorded fragment to the active session and forwards it to
// the transcription handle.
func (c *Coordinator) Feed(chunk model.AudioChunk) {
	if len(chunk) == 0 {
		return
	}
	c.mu.Lock()
	s := c.session
	state := c.state
	if s == nil {
		c.mu.Unlock()
		return
	}
	switch state {
	case StateRequestingPermission:
		// forwarded by Start once the transcription handle is open
		s.fragments.Enqueue(chunk)
		c.mu.Unlock()
		return
	case StateRecording, StateStopping:
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	s.fragments.Enqueue(chunk)
	c.forward(s, chunk)
}

func (c *Coordinator) forward(s *session, chunk model.AudioChunk) {
	if s.stream == nil {
		return
	}
	if err := s.stream.SendAudio(chunk); err != nil {
		log.Debug().Err(err).Str("component", "capture").Msg("forward audio to transcription")
	}
}

func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording || c.session == nil {
		c.mu.Unlock()
		return ErrNotRecording
	}
	s := c.session
	elapsed := c.now().Sub(s.started)
	if elapsed < c.minDuration {
		c.session = nil
		c.state = StateRejectedTooShort
		c.mu.Unlock()
		s.release()
		c.finish(StateRejectedTooShort, true)
		c.alert(AlertTooShort)
		return ErrTooShort
	}
	c.state = StateStopping
	c.mu.Unlock()

	duration := int(math.Round(elapsed.Seconds()))
	audioURL, transcript, err := c.join(ctx, s)
	if err != nil {
		s.release()
		c.finish(StateFailed, true)
		c.alert(AlertDevice)
		return err
	}

	msg, err := c.renderer.RenderVoice(audioURL, duration, transcript, model.SenderUser)
	s.release()
	c.finish(StateResolved, true)
	if err != nil {
		return errors.Wrap(err, "render voice message")
	}
	log.Info().Str("component", "capture").Str("message_id", msg.ID).Int("duration", duration).Msg("voice message resolved")
	return nil
}

// join waits for both device completions. The audio handle is stopped and its
// fragments assembled into a clip; the transcription handle is finished once
// the last fragment has been delivered to it.
func (c *Coordinator) join(ctx context.Context, s *session) (string, string, error) {
	var (
		audioURL   string
		transcript = FallbackTranscript
		g          errgroup.Group
	)
	flushed := make(chan struct{})

	g.Go(func() error {
		defer close(flushed)
		contentType, err := s.capture.Stop(ctx)
		if err != nil {
			return errors.Wrap(err, "stop audio capture")
		}
		clip, err := c.clips.Put(clips.Assemble(chunksToBytes(s.fragments.Drain())), contentType)
		if err != nil {
			return errors.Wrap(err, "assemble recording")
		}
		audioURL = clips.URL(clip.ID)
		return nil
	})
	g.Go(func() error {
		if s.stream == nil {
			return nil
		}
		select {
		case <-flushed:
		case <-ctx.Done():
			return nil
		}
		text, err := s.stream.Finish(ctx)
		if err != nil {
			log.Warn().Err(err).Str("component", "capture").Msg("transcription failed, using fallback")
			return nil
		}
		if text = strings.TrimSpace(text); text != "" {
			transcript = text
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return audioURL, transcript, nil
}

// Close releases the handles of the active session, if any, and refuses
// further sessions. Nothing is rendered for an interrupted recording.
func (c *Coordinator) Close() {
	c.mu.Lock()
	s := c.session
	// before Recording the handles are not installed yet; Start releases them
	installed := c.state == StateRecording || c.state == StateStopping
	c.session = nil
	c.closed = true
	c.state = StateIdle
	c.mu.Unlock()
	if s != nil && installed {
		s.release()
		log.Debug().Str("component", "capture").Msg("active recording released")
	}
}

func (c *Coordinator) fail(err error) error {
	outcome := StateFailed
	text := AlertDevice
	if errors.Is(err, ErrPermissionDenied) {
		outcome = StateFailedPermission
		text = AlertPermission
	}
	log.Warn().Err(err).Str("component", "capture").Str("outcome", outcome.String()).Msg("recording failed to start")
	c.finish(outcome, false)
	c.alert(text)
	return err
}

// finish records the terminal outcome and returns the coordinator to Idle.
func (c *Coordinator) finish(outcome State, recording bool) {
	c.mu.Lock()
	c.session = nil
	c.last = outcome
	c.state = StateIdle
	c.mu.Unlock()
	if recording {
		c.setRecording(false)
	}
}

func (c *Coordinator) alert(text string) {
	if err := c.view.Alert(text); err != nil {
		log.Debug().Err(err).Str("component", "capture").Msg("alert not delivered")
	}
}

func (c *Coordinator) setRecording(active bool) {
	if err := c.view.SetRecording(active); err != nil {
		log.Debug().Err(err).Str("component", "capture").Msg("recording indicator not delivered")
	}
}

func chunksToBytes(chunks []model.AudioChunk) [][]byte {
	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		out[i] = c
	}
	return out
}
