package widget

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/mrsingh-rishi/voicechat/capture"
	"github.com/mrsingh-rishi/voicechat/clips"
	"github.com/mrsingh-rishi/voicechat/dispatch"
	"github.com/mrsingh-rishi/voicechat/llm"
	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/mrsingh-rishi/voicechat/stt"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type frame struct {
	kind int
	data []byte
}

// scriptedConn plays the page: it answers device commands the way the
// browser script does and records everything the server sends.
type scriptedConn struct {
	in     chan frame
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []map[string]interface{}

	audio [][]byte
}

func newScriptedConn(audio ...[]byte) *scriptedConn {
	return &scriptedConn{
		in:     make(chan frame, 64),
		closed: make(chan struct{}),
		audio:  audio,
	}
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.in:
		return f.kind, f.data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *scriptedConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var cmd map[string]interface{}
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, cmd)
	c.mu.Unlock()

	switch cmd["type"] {
	case "mic_request":
		c.sendJSON(map[string]interface{}{"type": "mic_result", "granted": true})
	case "recorder_start":
		for _, chunk := range c.audio {
			c.in <- frame{kind: websocket.BinaryMessage, data: chunk}
		}
	case "recorder_stop":
		c.sendJSON(map[string]interface{}{"type": "recorder_stopped", "mimeType": "audio/webm;codecs=opus"})
	}
	return nil
}

func (c *scriptedConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptedConn) sendJSON(v interface{}) {
	raw, _ := json.Marshal(v)
	c.in <- frame{kind: websocket.TextMessage, data: raw}
}

func (c *scriptedConn) event(target, name, value string) {
	c.sendJSON(map[string]interface{}{"type": "event", "target": target, "event": name, "value": value})
}

func (c *scriptedConn) hello() {
	c.sendJSON(map[string]interface{}{
		"type":         "hello",
		"capabilities": map[string]interface{}{"microphone": true, "mediaRecorder": true},
	})
}

func (c *scriptedConn) commands(kind string) []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]interface{}
	for _, cmd := range c.sent {
		if cmd["type"] == kind {
			out = append(out, cmd)
		}
	}
	return out
}

func (c *scriptedConn) messages() []map[string]interface{} {
	var out []map[string]interface{}
	for _, cmd := range c.commands("message") {
		out = append(out, cmd["message"].(map[string]interface{}))
	}
	return out
}

type stubStream struct {
	mu     sync.Mutex
	audio  []byte
	closed bool
}

func (s *stubStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	s.audio = append(s.audio, chunk...)
	s.mu.Unlock()
	return nil
}

func (s *stubStream) Finish(context.Context) (string, error) { return "你好", nil }

func (s *stubStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubRecognizer struct{ stream *stubStream }

func (r stubRecognizer) Start(context.Context, stt.Options) (stt.Stream, error) {
	return r.stream, nil
}

func runSession(t *testing.T, conn *scriptedConn, deps Deps) *Session {
	t.Helper()
	s, err := NewSession(conn, deps)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()
	t.Cleanup(func() {
		conn.Close()
		<-done
	})
	return s
}

func TestNewSessionValidates(t *testing.T) {
	_, err := NewSession(nil, Deps{})
	require.Error(t, err)
	_, err = NewSession(newScriptedConn(), Deps{})
	require.ErrorContains(t, err, "clip store is required")
}

func TestTextMessageGetsReply(t *testing.T) {
	conn := newScriptedConn()
	s := runSession(t, conn, Deps{Clips: clips.NewStore(4), ReplyDelay: 10 * time.Millisecond})

	conn.hello()
	conn.event("send-btn", "click", "  hello ")

	require.Eventually(t, func() bool { return len(conn.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	msgs := conn.messages()
	require.Equal(t, "user", msgs[0]["sender"])
	require.Equal(t, "hello", msgs[0]["text"])
	require.Equal(t, "bot", msgs[1]["sender"])
	require.Equal(t, "收到你的消息：hello", msgs[1]["text"])

	require.Len(t, conn.commands("bind"), 1)
	require.Len(t, conn.commands("clear_input"), 1)
	disabled := conn.commands("voice_disabled")
	require.Len(t, disabled, 1)
	require.Equal(t, dispatch.UnsupportedTooltip, disabled[0]["title"])
	require.Equal(t, 2, s.Transcript.Len())
}

func TestVoiceMessageRoundTrip(t *testing.T) {
	conn := newScriptedConn([]byte("hdr"), []byte("ab"))
	stream := &stubStream{}
	store := clips.NewStore(4)
	runSession(t, conn, Deps{
		Recognizer:  stubRecognizer{stream: stream},
		Clips:       store,
		ReplyDelay:  10 * time.Millisecond,
		MinDuration: time.Millisecond,
	})

	conn.hello()
	conn.event("voice-btn", "mousedown", "")
	require.Eventually(t, func() bool { return len(conn.commands("recording")) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	conn.event("voice-btn", "mouseup", "")

	require.Eventually(t, func() bool { return len(conn.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	msgs := conn.messages()
	require.Equal(t, "voice", msgs[0]["type"])
	voice := msgs[0]["voice"].(map[string]interface{})
	require.Equal(t, "你好", voice["transcript"])
	require.Equal(t, "你说的是：你好", msgs[1]["text"])

	require.Empty(t, conn.commands("voice_disabled"))
	require.Empty(t, conn.commands("alert"))
	require.Equal(t, 1, store.Len())

	stream.mu.Lock()
	require.Equal(t, []byte("hdrab"), stream.audio)
	stream.mu.Unlock()

	require.Eventually(t, func() bool { return len(conn.commands("recorder_release")) == 1 }, time.Second, 5*time.Millisecond)
	recording := conn.commands("recording")
	require.Len(t, recording, 2)
	require.Equal(t, false, recording[1]["active"])
}

func TestPlaybackToggle(t *testing.T) {
	conn := newScriptedConn([]byte("a"))
	runSession(t, conn, Deps{
		Recognizer:  stubRecognizer{stream: &stubStream{}},
		Clips:       clips.NewStore(4),
		MinDuration: time.Millisecond,
	})

	conn.hello()
	conn.event("voice-btn", "mousedown", "")
	require.Eventually(t, func() bool { return len(conn.commands("recording")) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	conn.event("voice-btn", "mouseup", "")
	require.Eventually(t, func() bool { return len(conn.messages()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	id := conn.messages()[0]["id"].(string)
	conn.event(dispatch.VoiceTargetPrefix+id, "click", "")
	conn.event(dispatch.VoiceTargetPrefix+id, "ended", "")

	require.Eventually(t, func() bool { return len(conn.commands("playback")) == 2 }, 2*time.Second, 5*time.Millisecond)
	playback := conn.commands("playback")
	require.Equal(t, true, playback[0]["playing"])
	require.Equal(t, false, playback[1]["playing"])
}

func TestDeniedMicrophoneReportsPermissionError(t *testing.T) {
	conn := newScriptedConn()
	s, err := NewSession(conn, Deps{Recognizer: stubRecognizer{stream: &stubStream{}}, Clips: clips.NewStore(1)})
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() { errs <- s.devices.RequestAccess(context.Background()) }()
	require.Eventually(t, func() bool { return len(conn.commands("mic_request")) == 1 }, time.Second, 5*time.Millisecond)

	// drain the scripted grant and answer with a denial instead
	<-conn.in
	s.handle(inbound{Type: "mic_result", Denied: true, Error: "NotAllowedError"})
	require.ErrorIs(t, <-errs, capture.ErrPermissionDenied)
}

func TestDisconnectWhileRecordingReleasesHandles(t *testing.T) {
	conn := newScriptedConn([]byte("a"))
	stream := &stubStream{}
	s, err := NewSession(conn, Deps{
		Recognizer:  stubRecognizer{stream: stream},
		Clips:       clips.NewStore(1),
		MinDuration: time.Millisecond,
	})
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	conn.hello()
	conn.event("voice-btn", "mousedown", "")
	require.Eventually(t, func() bool { return len(conn.commands("recording")) == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	require.True(t, stream.isClosed())
	require.Len(t, conn.commands("recorder_release"), 1)
	require.Equal(t, capture.StateIdle, s.Coordinator.State())
	require.Empty(t, conn.messages())
}

// historyReplier answers with everything its conversation has seen so far.
type historyReplier struct {
	mu   sync.Mutex
	seen []string
}

func (r *historyReplier) Reply(_ context.Context, m model.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, m.Text)
	return strings.Join(r.seen, "|"), nil
}

func TestSessionsHaveSeparateConversations(t *testing.T) {
	newReplier := func() (llm.Replier, error) { return &historyReplier{}, nil }
	store := clips.NewStore(1)

	alice := newScriptedConn()
	runSession(t, alice, Deps{NewReplier: newReplier, Clips: store})
	bob := newScriptedConn()
	runSession(t, bob, Deps{NewReplier: newReplier, Clips: store})

	alice.hello()
	alice.event("send-btn", "click", "my password is hunter2")
	require.Eventually(t, func() bool { return len(alice.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)

	bob.hello()
	bob.event("send-btn", "click", "hi")
	require.Eventually(t, func() bool { return len(bob.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, "hi", bob.messages()[1]["text"])
	require.Equal(t, "my password is hunter2", alice.messages()[1]["text"])
}

func TestReplierFactoryErrorFailsSession(t *testing.T) {
	_, err := NewSession(newScriptedConn(), Deps{
		NewReplier: func() (llm.Replier, error) { return nil, errors.New("no quota") },
		Clips:      clips.NewStore(1),
	})
	require.ErrorContains(t, err, "no quota")
}
