package types

// TranscriptionResult is one recognition result reported by a speech-to-text
// provider.
type TranscriptionResult struct {
	Transcription string
	Confidence    float64
	Final         bool
}
