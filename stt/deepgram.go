package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	gws "github.com/gorilla/websocket"
	"github.com/mrsingh-rishi/voicechat/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultDeepgramEndpoint = "wss://api.deepgram.com/v1/listen"

type DeepgramClient struct {
	APIKey   string
	Endpoint string
	Dialer   *gws.Dialer
}

type TranscriptionMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

var _ Recognizer = &DeepgramClient{}

func NewDeepgramClient(apiKey string, endpoint string) (*DeepgramClient, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: API key is required")
	}
	if endpoint == "" {
		endpoint = DefaultDeepgramEndpoint
	}
	return &DeepgramClient{
		APIKey:   apiKey,
		Endpoint: endpoint,
		Dialer:   gws.DefaultDialer,
	}, nil
}

func (dg *DeepgramClient) listenURL(opts Options) (string, error) {
	u, err := url.Parse(dg.Endpoint)
	if err != nil {
		return "", errors.Wrap(err, "deepgram: parse endpoint")
	}
	language := opts.Language
	if language == "" {
		language = DefaultLanguage
	}
	q := u.Query()
	q.Set("language", language)
	q.Set("interim_results", strconv.FormatBool(opts.InterimResults))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (dg *DeepgramClient) Start(ctx context.Context, opts Options) (Stream, error) {
	dgURL, err := dg.listenURL(opts)
	if err != nil {
		return nil, err
	}
	header := http.Header{
		"Authorization": {fmt.Sprintf("Token %s", dg.APIKey)},
	}
	conn, _, err := dg.Dialer.DialContext(ctx, dgURL, header)
	if err != nil {
		return nil, errors.Wrap(err, "deepgram: dial")
	}
	log.Debug().Str("component", "stt").Str("provider", "deepgram").Msg("connected to Deepgram")

	s := &deepgramStream{
		conn:     conn,
		interim:  opts.InterimResults,
		language: opts.Language,
		done:     make(chan struct{}),
	}
	go s.listen()
	return s, nil
}

type deepgramStream struct {
	conn     *gws.Conn
	interim  bool
	language string

	writeMu sync.Mutex
	mu      sync.Mutex
	results []types.TranscriptionResult
	closed  bool

	done chan struct{}
}

func (s *deepgramStream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(gws.BinaryMessage, chunk); err != nil {
		return errors.Wrap(err, "deepgram: write audio")
	}
	return nil
}

func (s *deepgramStream) listen() {
	defer close(s.done)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if !gws.IsCloseError(err, gws.CloseNormalClosure) {
				log.Debug().Err(err).Str("component", "stt").Msg("deepgram read ended")
			}
			return
		}

		var transcription TranscriptionMessage
		if err := json.Unmarshal(message, &transcription); err != nil {
			log.Warn().Err(err).Str("component", "stt").Msg("error parsing Deepgram response")
			continue
		}
		if len(transcription.Channel.Alternatives) == 0 {
			continue
		}
		if !transcription.IsFinal && !s.interim {
			continue
		}
		text := strings.TrimSpace(transcription.Channel.Alternatives[0].Transcript)
		if text == "" {
			continue
		}
		s.mu.Lock()
		s.results = append(s.results, types.TranscriptionResult{
			Transcription: text,
			Confidence:    transcription.Channel.Alternatives[0].Confidence,
			Final:         transcription.IsFinal,
		})
		s.mu.Unlock()
		log.Debug().Str("component", "stt").Str("transcript", text).Bool("final", transcription.IsFinal).Msg("transcription result")
	}
}

func (s *deepgramStream) Finish(ctx context.Context) (string, error) {
	s.writeMu.Lock()
	err := s.conn.WriteMessage(gws.TextMessage, []byte(`{"type":"CloseStream"}`))
	s.writeMu.Unlock()
	if err != nil {
		return "", errors.Wrap(err, "deepgram: close stream")
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return joinSegments(s.results, s.language)
}

// joinSegments builds the transcript of the whole recording. Each final
// result covers the next stretch of audio, so finals are joined in order;
// without any final, the latest interim revision wins.
func joinSegments(results []types.TranscriptionResult, language string) (string, error) {
	var finals []string
	for _, r := range results {
		if r.Final {
			finals = append(finals, r.Transcription)
		}
	}
	if len(finals) > 0 {
		return strings.Join(finals, segmentSeparator(language)), nil
	}
	if len(results) == 0 {
		return "", ErrNoResult
	}
	return results[len(results)-1].Transcription, nil
}

// segmentSeparator is empty for scripts written without spaces between
// words.
func segmentSeparator(language string) string {
	base, _, _ := strings.Cut(strings.ToLower(language), "-")
	switch base {
	case "", "zh", "ja", "th", "lo", "km", "my":
		return ""
	default:
		return " "
	}
}

// Close gracefully closes the Deepgram WebSocket connection.
func (s *deepgramStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, "Closing connection"))
	s.writeMu.Unlock()
	return s.conn.Close()
}
