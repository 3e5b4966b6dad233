package stt

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// WhisperClient transcribes whole recordings with the OpenAI audio API. Audio
// is buffered while recording and uploaded on Finish.
type WhisperClient struct {
	client   *openai.Client
	model    string
	filename string
}

var _ Recognizer = &WhisperClient{}

func NewWhisperClient(apiKey string) (*WhisperClient, error) {
	if apiKey == "" {
		return nil, errors.New("whisper: API key is required")
	}
	return NewWhisperClientWithConfig(openai.DefaultConfig(apiKey)), nil
}

func NewWhisperClientWithConfig(cfg openai.ClientConfig) *WhisperClient {
	return &WhisperClient{
		client:   openai.NewClientWithConfig(cfg),
		model:    openai.Whisper1,
		filename: "recording.webm",
	}
}

func (w *WhisperClient) Start(_ context.Context, opts Options) (Stream, error) {
	return &whisperStream{
		client:   w.client,
		model:    w.model,
		filename: w.filename,
		language: whisperLanguage(opts.Language),
	}, nil
}

// whisperLanguage maps a BCP 47 tag onto the ISO-639-1 code Whisper expects.
func whisperLanguage(tag string) string {
	if tag == "" {
		tag = DefaultLanguage
	}
	base, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(base)
}

type whisperStream struct {
	client   *openai.Client
	model    string
	filename string
	language string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (s *whisperStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("whisper: stream closed")
	}
	s.buf.Write(chunk)
	return nil
}

func (s *whisperStream) Finish(ctx context.Context) (string, error) {
	s.mu.Lock()
	data := append([]byte(nil), s.buf.Bytes()...)
	s.closed = true
	s.mu.Unlock()

	if len(data) == 0 {
		return "", ErrNoResult
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.model,
		FilePath: s.filename,
		Reader:   bytes.NewReader(data),
		Language: s.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", errors.Wrap(err, "whisper: create transcription")
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoResult
	}
	log.Debug().Str("component", "stt").Str("provider", "whisper").Str("transcript", text).Msg("transcription result")
	return text, nil
}

func (s *whisperStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.buf.Reset()
	s.mu.Unlock()
	return nil
}
