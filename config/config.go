package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mrsingh-rishi/voicechat/llm"
	"github.com/mrsingh-rishi/voicechat/model"
	"github.com/mrsingh-rishi/voicechat/stt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOICECHAT"

const (
	ProviderDeepgram = "deepgram"
	ProviderWhisper  = "whisper"
	ProviderNone     = "none"

	ReplyEcho   = "echo"
	ReplyOpenAI = "openai"
)

type STT struct {
	Provider string
	Language string
}

type Deepgram struct {
	APIKey   string
	Endpoint string
}

type OpenAI struct {
	APIKey string
	Model  string
}

type Reply struct {
	Mode         string
	Delay        time.Duration
	SystemPrompt string
}

type Config struct {
	Addr        string
	LogLevel    string
	STT         STT
	Deepgram    Deepgram
	OpenAI      OpenAI
	Reply       Reply
	MinDuration time.Duration
	MaxClips    int
	Elements    model.Elements
}

// LoadDotEnv loads .env files into the environment. A missing file is not an
// error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Str("component", "config").Msg("no .env file, using environment")
	}
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	els := model.DefaultElements()

	v.SetDefault("addr", ":3000")
	v.SetDefault("log-level", "info")
	v.SetDefault("stt.provider", ProviderDeepgram)
	v.SetDefault("stt.language", stt.DefaultLanguage)
	v.SetDefault("deepgram.endpoint", stt.DefaultDeepgramEndpoint)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("reply.mode", ReplyEcho)
	v.SetDefault("reply.delay", time.Second)
	v.SetDefault("reply.system-prompt", llm.DefaultSystemInstructions)
	v.SetDefault("recording.min-duration", time.Second)
	v.SetDefault("clips.max", 256)
	v.SetDefault("elements.voice-button", els.VoiceButton)
	v.SetDefault("elements.send-button", els.SendButton)
	v.SetDefault("elements.text-input", els.TextInput)
	v.SetDefault("elements.message-list", els.MessageList)
	v.SetDefault("elements.recording-toast", els.RecordingToast)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// unprefixed names used by existing deployments
	_ = v.BindEnv("deepgram.api-key", EnvPrefix+"_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY")
	_ = v.BindEnv("openai.api-key", EnvPrefix+"_OPENAI_API_KEY", "OPEN_AI_API_KEY")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	return v
}

var flagKeys = map[string]string{
	"addr":             "addr",
	"log-level":        "log-level",
	"stt-provider":     "stt.provider",
	"stt-language":     "stt.language",
	"reply-mode":       "reply.mode",
	"reply-delay":      "reply.delay",
	"min-duration":     "recording.min-duration",
	"max-clips":        "clips.max",
	"deepgram-api-key": "deepgram.api-key",
	"openai-api-key":   "openai.api-key",
	"openai-model":     "openai.model",
}

// AddFlags registers the serve flags on cmd and binds them to v.
func AddFlags(v *viper.Viper, cmd *cobra.Command) error {
	f := cmd.Flags()
	f.String("config", "", "Path to a YAML config file")
	f.String("addr", ":3000", "HTTP listen address")
	f.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.String("stt-provider", ProviderDeepgram, "Speech-to-text provider (deepgram, whisper, none)")
	f.String("stt-language", stt.DefaultLanguage, "Recognition language")
	f.String("reply-mode", ReplyEcho, "Reply source (echo, openai)")
	f.Duration("reply-delay", time.Second, "Delay before the counterpart reply")
	f.Duration("min-duration", time.Second, "Shortest accepted recording")
	f.Int("max-clips", 256, "Recordings kept in memory")
	f.String("deepgram-api-key", "", "Deepgram API key")
	f.String("openai-api-key", "", "OpenAI API key")
	f.String("openai-model", "gpt-4o-mini", "OpenAI chat model")

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			return errors.Wrapf(err, "bind flag %s", flag)
		}
	}
	return nil
}

// Load reads the optional config file and returns the validated settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "read config file")
		}
		log.Debug().Str("component", "config").Msg("no config file")
	}

	cfg := Config{
		Addr:     v.GetString("addr"),
		LogLevel: v.GetString("log-level"),
		STT: STT{
			Provider: strings.ToLower(v.GetString("stt.provider")),
			Language: v.GetString("stt.language"),
		},
		Deepgram: Deepgram{
			APIKey:   v.GetString("deepgram.api-key"),
			Endpoint: v.GetString("deepgram.endpoint"),
		},
		OpenAI: OpenAI{
			APIKey: v.GetString("openai.api-key"),
			Model:  v.GetString("openai.model"),
		},
		Reply: Reply{
			Mode:         strings.ToLower(v.GetString("reply.mode")),
			Delay:        v.GetDuration("reply.delay"),
			SystemPrompt: v.GetString("reply.system-prompt"),
		},
		MinDuration: v.GetDuration("recording.min-duration"),
		MaxClips:    v.GetInt("clips.max"),
		Elements: model.Elements{
			VoiceButton:    v.GetString("elements.voice-button"),
			SendButton:     v.GetString("elements.send-button"),
			TextInput:      v.GetString("elements.text-input"),
			MessageList:    v.GetString("elements.message-list"),
			RecordingToast: v.GetString("elements.recording-toast"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: addr is required")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "config: log-level %q", c.LogLevel)
	}
	switch c.STT.Provider {
	case ProviderDeepgram:
		if c.Deepgram.APIKey == "" {
			return errors.New("config: DEEPGRAM_API_KEY must be set for the deepgram provider")
		}
	case ProviderWhisper:
		if c.OpenAI.APIKey == "" {
			return errors.New("config: OPEN_AI_API_KEY must be set for the whisper provider")
		}
	case ProviderNone:
	default:
		return errors.Errorf("config: unknown stt.provider %q", c.STT.Provider)
	}
	switch c.Reply.Mode {
	case ReplyEcho:
	case ReplyOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("config: OPEN_AI_API_KEY must be set for openai replies")
		}
	default:
		return errors.Errorf("config: unknown reply.mode %q", c.Reply.Mode)
	}
	if c.Reply.Delay < 0 {
		return errors.New("config: reply.delay must not be negative")
	}
	if c.MinDuration <= 0 {
		return errors.New("config: recording.min-duration must be positive")
	}
	if c.MaxClips <= 0 {
		return errors.New("config: clips.max must be positive")
	}
	els := c.Elements
	if els.VoiceButton == "" || els.SendButton == "" || els.TextInput == "" || els.MessageList == "" || els.RecordingToast == "" {
		return errors.New("config: every elements.* id must be set")
	}
	return nil
}

// Recognizer builds the configured speech-to-text provider. It returns nil
// when voice input is disabled.
func (c Config) Recognizer() (stt.Recognizer, error) {
	switch c.STT.Provider {
	case ProviderDeepgram:
		dg, err := stt.NewDeepgramClient(c.Deepgram.APIKey, c.Deepgram.Endpoint)
		if err != nil {
			return nil, err
		}
		return dg, nil
	case ProviderWhisper:
		w, err := stt.NewWhisperClient(c.OpenAI.APIKey)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, nil
	}
}

// Replier returns the builder of each connection's reply source, so no two
// connections share a conversation history.
func (c Config) Replier() (llm.Factory, error) {
	if c.Reply.Mode != ReplyOpenAI {
		return llm.NewEcho, nil
	}
	if c.OpenAI.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	return llm.NewOpenAIFactory(openai.DefaultConfig(c.OpenAI.APIKey), c.Reply.SystemPrompt, c.OpenAI.Model)
}
