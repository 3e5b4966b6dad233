package clips

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mrsingh-rishi/voicechat/queue"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultContentType = "audio/webm"
	DefaultMaxClips    = 256
)

// Clip is an assembled recording, addressable through URL(ID).
type Clip struct {
	ID          string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// Store keeps assembled clips in memory. Once max clips are held the oldest
// one is evicted.
type Store struct {
	mu    sync.RWMutex
	max   int
	clips map[string]Clip
	order *queue.Queue[string]
}

func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxClips
	}
	return &Store{
		max:   max,
		clips: map[string]Clip{},
		order: queue.New[string](),
	}
}

func (s *Store) Put(data []byte, contentType string) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("clips: empty recording")
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	clip := Clip{
		ID:          uuid.NewString(),
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clips[clip.ID] = clip
	s.order.Enqueue(clip.ID)
	for s.order.Len() > s.max {
		oldest, ok := s.order.Dequeue()
		if !ok {
			break
		}
		delete(s.clips, oldest)
		log.Debug().Str("component", "clips").Str("clip_id", oldest).Msg("evicted clip")
	}
	return clip, nil
}

func (s *Store) Get(id string) (Clip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clip, ok := s.clips[id]
	return clip, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}

// URL is the audio reference handed to the page for a clip.
func URL(id string) string {
	return "/clips/" + id
}

// Assemble joins recorded fragments into one playable buffer.
func Assemble(fragments [][]byte) []byte {
	size := 0
	for _, f := range fragments {
		size += len(f)
	}
	out := make([]byte, 0, size)
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out
}
