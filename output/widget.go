package output

import (
	"fmt"
	"sync"

	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	IconPlay  = "▶"
	IconPause = "⏸"
)

var ErrClosed = errors.New("output: connection closed")

// Conn is the write side of the widget websocket.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// WidgetOutput turns view updates and device requests into JSON commands
// for the page.
type WidgetOutput struct {
	connID string

	mu     sync.Mutex
	ws     Conn
	closed bool
}

func NewWidgetOutput(connID string, ws Conn) (*WidgetOutput, error) {
	if ws == nil {
		return nil, fmt.Errorf("websocket connection is required")
	}
	return &WidgetOutput{connID: connID, ws: ws}, nil
}

func (o *WidgetOutput) send(event string, fields map[string]interface{}) error {
	msg := map[string]interface{}{"type": event}
	for k, v := range fields {
		msg[k] = v
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if err := o.ws.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Str("component", "output").Str("conn_id", o.connID).Str("event", event).Msg("widget write failed")
		return errors.Wrapf(err, "output: write %s", event)
	}
	return nil
}

func (o *WidgetOutput) Bind(elements model.Elements) error {
	return o.send("bind", map[string]interface{}{"elements": elements})
}

func (o *WidgetOutput) AppendMessage(m model.Message) error {
	return o.send("message", map[string]interface{}{"message": m})
}

func (o *WidgetOutput) ScrollToBottom() error {
	return o.send("scroll", nil)
}

func (o *WidgetOutput) Alert(text string) error {
	return o.send("alert", map[string]interface{}{"text": text})
}

func (o *WidgetOutput) SetRecording(active bool) error {
	return o.send("recording", map[string]interface{}{"active": active})
}

func (o *WidgetOutput) DisableVoice(title string) error {
	return o.send("voice_disabled", map[string]interface{}{"title": title})
}

func (o *WidgetOutput) ClearInput() error {
	return o.send("clear_input", nil)
}

func (o *WidgetOutput) SetPlayback(messageID string, playing bool) error {
	icon := IconPlay
	if playing {
		icon = IconPause
	}
	return o.send("playback", map[string]interface{}{
		"id":      messageID,
		"playing": playing,
		"icon":    icon,
		"wave":    playing,
	})
}

func (o *WidgetOutput) RequestMicrophone() error {
	return o.send("mic_request", nil)
}

func (o *WidgetOutput) StartRecorder() error {
	return o.send("recorder_start", nil)
}

func (o *WidgetOutput) StopRecorder() error {
	return o.send("recorder_stop", nil)
}

func (o *WidgetOutput) ReleaseRecorder() error {
	return o.send("recorder_release", nil)
}

func (o *WidgetOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	if o.ws != nil {
		o.ws.Close()
	}
}
