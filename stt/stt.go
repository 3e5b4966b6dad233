package stt

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNoResult is returned by Finish when recognition ended without any
// usable transcript.
var ErrNoResult = errors.New("stt: no transcription result")

const DefaultLanguage = "zh-CN"

type Options struct {
	Language       string
	InterimResults bool
}

// Recognizer opens transcription streams for single recordings.
type Recognizer interface {
	Start(ctx context.Context, opts Options) (Stream, error)
}

// Stream is the transcription handle of one recording.
type Stream interface {
	SendAudio(chunk []byte) error
	// Finish stops recognition and blocks until the provider reports the end
	// of the stream. The last final result wins.
	Finish(ctx context.Context) (string, error)
	Close() error
}
