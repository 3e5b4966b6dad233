package widget

import (
	"context"
	"sync"

	"github.com/mrsingh-rishi/voicechat/capture"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Recorder is the page's microphone and MediaRecorder, driven by commands.
type Recorder interface {
	RequestMicrophone() error
	StartRecorder() error
	StopRecorder() error
	ReleaseRecorder() error
}

type micResult struct {
	granted bool
	denied  bool
	reason  string
}

// deviceBridge implements the capture devices on top of the widget channel.
// Requests go out as commands; the read loop resolves the pending request
// when the page answers.
type deviceBridge struct {
	page Recorder

	mu      sync.Mutex
	access  chan micResult
	stopped chan string
}

func newDeviceBridge(page Recorder) *deviceBridge {
	return &deviceBridge{page: page}
}

func (b *deviceBridge) RequestAccess(ctx context.Context) error {
	reply := make(chan micResult, 1)
	b.mu.Lock()
	b.access = reply
	b.mu.Unlock()

	if err := b.page.RequestMicrophone(); err != nil {
		return errors.Wrap(err, "request microphone")
	}
	select {
	case r := <-reply:
		switch {
		case r.granted:
			return nil
		case r.denied:
			return errors.Wrapf(capture.ErrPermissionDenied, "page reported %q", r.reason)
		default:
			return errors.Errorf("microphone unavailable: %q", r.reason)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *deviceBridge) resolveAccess(r micResult) {
	b.mu.Lock()
	reply := b.access
	b.access = nil
	b.mu.Unlock()
	if reply == nil {
		log.Debug().Str("component", "widget").Msg("unexpected mic_result")
		return
	}
	reply <- r
}

func (b *deviceBridge) Record(context.Context) (capture.AudioCapture, error) {
	if err := b.page.StartRecorder(); err != nil {
		return nil, errors.Wrap(err, "start recorder")
	}
	return &remoteCapture{bridge: b}, nil
}

func (b *deviceBridge) resolveStopped(mimeType string) {
	b.mu.Lock()
	reply := b.stopped
	b.stopped = nil
	b.mu.Unlock()
	if reply == nil {
		log.Debug().Str("component", "widget").Msg("unexpected recorder_stopped")
		return
	}
	reply <- mimeType
}

// remoteCapture is one MediaRecorder run on the page. Fragments arrive as
// binary frames ahead of the recorder_stopped answer on the same connection.
type remoteCapture struct {
	bridge *deviceBridge
	once   sync.Once
}

func (c *remoteCapture) Stop(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	c.bridge.mu.Lock()
	c.bridge.stopped = reply
	c.bridge.mu.Unlock()

	if err := c.bridge.page.StopRecorder(); err != nil {
		return "", errors.Wrap(err, "stop recorder")
	}
	select {
	case mimeType := <-reply:
		return mimeType, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *remoteCapture) Release() {
	c.once.Do(func() {
		if err := c.bridge.page.ReleaseRecorder(); err != nil {
			log.Debug().Err(err).Str("component", "widget").Msg("release recorder")
		}
	})
}
