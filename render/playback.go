package render

import "sync"

// Playback is the play/pause state of one voice bubble.
type Playback struct {
	mu      sync.Mutex
	playing bool
}

// Toggle flips the state and returns true if the bubble is now playing.
func (p *Playback) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = !p.playing
	return p.playing
}

func (p *Playback) Reset() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

func (p *Playback) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}
