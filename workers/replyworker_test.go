package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mrsingh-rishi/voicechat/llm"
	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	mu       sync.Mutex
	rendered []model.Message
	at       []time.Time
}

func (r *recordingRenderer) RenderText(content string, sender model.Sender) (model.Message, error) {
	m := model.NewTextMessage(sender, content)
	r.mu.Lock()
	r.rendered = append(r.rendered, m)
	r.at = append(r.at, time.Now())
	r.mu.Unlock()
	return m, nil
}

func (r *recordingRenderer) messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Message(nil), r.rendered...)
}

type failingReplier struct{}

func (failingReplier) Reply(context.Context, model.Message) (string, error) {
	return "", errors.New("upstream down")
}

func TestNewReplyWorkerValidates(t *testing.T) {
	_, err := NewReplyWorker(nil, time.Second, &recordingRenderer{})
	require.ErrorContains(t, err, "replier is required")
	_, err = NewReplyWorker(llm.EchoReplier{}, time.Second, nil)
	require.ErrorContains(t, err, "renderer is required")
}

func TestReplyWorkerRepliesAfterDelay(t *testing.T) {
	renderer := &recordingRenderer{}
	w, err := NewReplyWorker(llm.EchoReplier{}, 50*time.Millisecond, renderer)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	scheduled := time.Now()
	w.Schedule(model.NewTextMessage(model.SenderUser, "hello"))

	require.Eventually(t, func() bool { return len(renderer.messages()) == 1 }, time.Second, 5*time.Millisecond)
	got := renderer.messages()[0]
	require.Equal(t, model.SenderBot, got.Sender)
	require.Equal(t, "收到你的消息：hello", got.Text)
	renderer.mu.Lock()
	delivered := renderer.at[0]
	renderer.mu.Unlock()
	require.GreaterOrEqual(t, delivered.Sub(scheduled), 50*time.Millisecond)
}

func TestReplyWorkerFallsBackToEcho(t *testing.T) {
	renderer := &recordingRenderer{}
	w, err := NewReplyWorker(failingReplier{}, 0, renderer)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	w.Schedule(model.NewVoiceMessage(model.SenderUser, model.VoiceContent{Transcript: "你好"}))

	require.Eventually(t, func() bool { return len(renderer.messages()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "你说的是：你好", renderer.messages()[0].Text)
}

func TestReplyWorkerStopCancelsPendingReplies(t *testing.T) {
	renderer := &recordingRenderer{}
	w, err := NewReplyWorker(llm.EchoReplier{}, time.Hour, renderer)
	require.NoError(t, err)
	w.Start()

	w.Schedule(model.NewTextMessage(model.SenderUser, "hello"))
	w.Stop()

	require.Empty(t, renderer.messages())
	w.Schedule(model.NewTextMessage(model.SenderUser, "late"))
	require.Empty(t, renderer.messages())
}

// slowFirstReplier takes longer to answer "first" than anything else.
type slowFirstReplier struct{}

func (slowFirstReplier) Reply(_ context.Context, m model.Message) (string, error) {
	if m.Text == "first" {
		time.Sleep(50 * time.Millisecond)
	}
	return m.Text, nil
}

func TestReplyWorkerKeepsSchedulingOrder(t *testing.T) {
	renderer := &recordingRenderer{}
	w, err := NewReplyWorker(slowFirstReplier{}, 5*time.Millisecond, renderer)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	w.Schedule(model.NewTextMessage(model.SenderUser, "first"))
	w.Schedule(model.NewTextMessage(model.SenderUser, "second"))
	w.Schedule(model.NewTextMessage(model.SenderUser, "third"))

	require.Eventually(t, func() bool { return len(renderer.messages()) == 3 }, time.Second, 5*time.Millisecond)
	var texts []string
	for _, m := range renderer.messages() {
		texts = append(texts, m.Text)
	}
	require.Equal(t, []string{"first", "second", "third"}, texts)
}
