package widget

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/mrsingh-rishi/voicechat/capture"
	"github.com/mrsingh-rishi/voicechat/dispatch"
	"github.com/mrsingh-rishi/voicechat/llm"
	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/mrsingh-rishi/voicechat/output"
	"github.com/mrsingh-rishi/voicechat/render"
	"github.com/mrsingh-rishi/voicechat/stt"
	"github.com/mrsingh-rishi/voicechat/workers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Conn is the browser side of the widget channel.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Deps are shared by every session of the process.
type Deps struct {
	// Recognizer is nil when no speech-to-text provider is configured.
	Recognizer  stt.Recognizer
	// NewReplier builds the reply source of each session. Nil means echo.
	NewReplier  llm.Factory
	Clips       capture.ClipStore
	Elements    model.Elements
	ReplyDelay  time.Duration
	MinDuration time.Duration
	Language    string
}

type capabilities struct {
	Microphone    bool `json:"microphone"`
	MediaRecorder bool `json:"mediaRecorder"`
}

type inbound struct {
	Type         string       `json:"type"`
	Capabilities capabilities `json:"capabilities"`

	Target string `json:"target"`
	Event  string `json:"event"`
	Key    string `json:"key"`
	Value  string `json:"value"`

	Granted bool   `json:"granted"`
	Denied  bool   `json:"denied"`
	Error   string `json:"error"`

	MimeType string `json:"mimeType"`
}

// Session is one browser connection: its transcript, its recording
// coordinator and the workers answering it.
type Session struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc

	ws          Conn
	elements    model.Elements
	Output      *output.WidgetOutput
	Transcript  *model.Transcript
	Renderer    *render.Renderer
	Replies     *workers.ReplyWorker
	Coordinator *capture.Coordinator
	Dispatcher  *dispatch.Dispatcher
	devices     *deviceBridge
}

func NewSession(ws Conn, deps Deps) (*Session, error) {
	if ws == nil {
		return nil, errors.New("widget: connection is nil")
	}
	if deps.NewReplier == nil {
		deps.NewReplier = llm.NewEcho
	}
	if deps.Clips == nil {
		return nil, errors.New("widget: clip store is required")
	}
	if deps.Elements == (model.Elements{}) {
		deps.Elements = model.DefaultElements()
	}

	id := uuid.NewString()
	out, err := output.NewWidgetOutput(id, ws)
	if err != nil {
		return nil, errors.Wrap(err, "widget: create output")
	}
	transcript := model.NewTranscript()
	renderer, err := render.NewRenderer(transcript, out)
	if err != nil {
		return nil, err
	}
	replier, err := deps.NewReplier()
	if err != nil {
		return nil, errors.Wrap(err, "widget: create reply source")
	}
	replies, err := workers.NewReplyWorker(replier, deps.ReplyDelay, renderer)
	if err != nil {
		return nil, errors.Wrap(err, "widget: create reply worker")
	}
	renderer.SetReplyScheduler(replies)

	devices := newDeviceBridge(out)
	coordinator, err := capture.NewCoordinator(capture.Options{
		Microphone:  devices,
		Recognizer:  deps.Recognizer,
		Clips:       deps.Clips,
		View:        out,
		Renderer:    renderer,
		Language:    deps.Language,
		MinDuration: deps.MinDuration,
	})
	if err != nil {
		return nil, err
	}
	dispatcher, err := dispatch.New(coordinator, renderer, out)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:          id,
		ctx:         ctx,
		cancel:      cancel,
		ws:          ws,
		elements:    deps.Elements,
		Output:      out,
		Transcript:  transcript,
		Renderer:    renderer,
		Replies:     replies,
		Coordinator: coordinator,
		Dispatcher:  dispatcher,
		devices:     devices,
	}, nil
}

// Run serves the connection until the browser goes away.
func (s *Session) Run() {
	defer s.CleanupResources()

	s.Replies.Start()
	log.Info().Str("component", "widget").Str("conn_id", s.ID).Msg("session started")

	for {
		messageType, msg, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Str("component", "widget").Str("conn_id", s.ID).Msg("connection closed")
			} else {
				log.Warn().Err(err).Str("component", "widget").Str("conn_id", s.ID).Msg("read failed")
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			s.Coordinator.Feed(model.AudioChunk(msg))
			continue
		}

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			log.Debug().Err(err).Str("component", "widget").Str("conn_id", s.ID).Msg("malformed frame")
			continue
		}
		s.handle(in)
	}
}

func (s *Session) handle(in inbound) {
	switch in.Type {
	case "hello":
		supported := s.Coordinator.Supported() && in.Capabilities.Microphone && in.Capabilities.MediaRecorder
		if err := s.Dispatcher.Bind(s.elements, supported); err != nil {
			log.Warn().Err(err).Str("component", "widget").Str("conn_id", s.ID).Msg("bind failed")
		}
	case "event":
		s.Dispatcher.Dispatch(s.ctx, dispatch.Event{
			Target: in.Target,
			Name:   in.Event,
			Key:    in.Key,
			Value:  in.Value,
		})
	case "mic_result":
		s.devices.resolveAccess(micResult{granted: in.Granted, denied: in.Denied, reason: in.Error})
	case "recorder_stopped":
		s.devices.resolveStopped(in.MimeType)
	default:
		log.Debug().Str("component", "widget").Str("conn_id", s.ID).Str("type", in.Type).Msg("unknown frame")
	}
}

// CleanupResources cancels pending device waits, releases an interrupted
// recording and pending replies, then closes the connection.
func (s *Session) CleanupResources() {
	s.cancel()
	s.Coordinator.Close()
	s.Replies.Stop()
	s.Dispatcher.Wait()
	s.Output.Stop()
	log.Info().Str("component", "widget").Str("conn_id", s.ID).Int("messages", s.Transcript.Len()).Msg("session ended")
}
