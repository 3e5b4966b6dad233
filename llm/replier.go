package llm

import (
	"context"

	"github.com/mrsingh-rishi/voicechat/model"
)

const (
	TextReplyPrefix  = "收到你的消息："
	VoiceReplyPrefix = "你说的是："
)

// Replier produces the counterpart reply to a user message.
type Replier interface {
	Reply(ctx context.Context, m model.Message) (string, error)
}

// Factory builds the reply source of one conversation.
type Factory func() (Replier, error)

// EchoReplier quotes the user's input back.
type EchoReplier struct{}

func NewEcho() (Replier, error) {
	return EchoReplier{}, nil
}

func (EchoReplier) Reply(_ context.Context, m model.Message) (string, error) {
	return Echo(m), nil
}

func Echo(m model.Message) string {
	if m.Type == model.KindVoice {
		return VoiceReplyPrefix + UserText(m)
	}
	return TextReplyPrefix + m.Text
}

// UserText is the text a message carries: the typed text, or the transcript
// of a voice message.
func UserText(m model.Message) string {
	if m.Type == model.KindVoice && m.Voice != nil {
		return m.Voice.Transcript
	}
	return m.Text
}
