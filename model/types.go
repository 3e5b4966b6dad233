package model

import (
	"time"

	"github.com/google/uuid"
)

// AudioChunk represents a chunk of audio data.
type AudioChunk []byte

// Kind tells a text bubble from a voice bubble.
type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
)

// Sender is the side of the conversation a message came from.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// VoiceContent is the payload of a voice message.
type VoiceContent struct {
	AudioURL   string `json:"audioUrl"`
	Duration   int    `json:"duration"`
	Transcript string `json:"transcript"`
}

// Message is one rendered entry of the conversation. Messages are never
// mutated once created.
type Message struct {
	ID        string        `json:"id"`
	Type      Kind          `json:"type"`
	Sender    Sender        `json:"sender"`
	Text      string        `json:"text,omitempty"`
	Voice     *VoiceContent `json:"voice,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

func NewTextMessage(sender Sender, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      KindText,
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

func NewVoiceMessage(sender Sender, voice VoiceContent) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      KindVoice,
		Sender:    sender,
		Voice:     &voice,
		CreatedAt: time.Now(),
	}
}

// Elements names the interactive elements of the hosting page.
type Elements struct {
	VoiceButton    string `json:"voiceButton"`
	SendButton     string `json:"sendButton"`
	TextInput      string `json:"textInput"`
	MessageList    string `json:"messageList"`
	RecordingToast string `json:"recordingToast"`
}

func DefaultElements() Elements {
	return Elements{
		VoiceButton:    "voice-btn",
		SendButton:     "send-btn",
		TextInput:      "user-input",
		MessageList:    "chat-messages",
		RecordingToast: "recording-toast",
	}
}
