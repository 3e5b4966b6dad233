package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrsingh-rishi/voicechat/clips"
	"github.com/mrsingh-rishi/voicechat/config"
	"github.com/mrsingh-rishi/voicechat/server"
	"github.com/mrsingh-rishi/voicechat/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load .env if present
	config.LoadDotEnv()

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("voicechat failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voicechat",
		Short:         "Push-to-talk chat widget server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat widget and its WebSocket channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, file)
			if err != nil {
				return err
			}
			level, _ := zerolog.ParseLevel(cfg.LogLevel)
			zerolog.SetGlobalLevel(level)
			return serve(cmd.Context(), cfg)
		},
	}
	if err := config.AddFlags(v, cmd); err != nil {
		log.Fatal().Err(err).Msg("failed to register flags")
	}
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	recognizer, err := cfg.Recognizer()
	if err != nil {
		return errors.Wrap(err, "create speech-to-text provider")
	}
	newReplier, err := cfg.Replier()
	if err != nil {
		return errors.Wrap(err, "create reply source")
	}

	srv, err := server.New(widget.Deps{
		Recognizer:  recognizer,
		NewReplier:  newReplier,
		Elements:    cfg.Elements,
		ReplyDelay:  cfg.Reply.Delay,
		MinDuration: cfg.MinDuration,
		Language:    cfg.STT.Language,
	}, clips.NewStore(cfg.MaxClips))
	if err != nil {
		return err
	}

	log.Info().
		Str("stt", cfg.STT.Provider).
		Str("reply", cfg.Reply.Mode).
		Str("language", cfg.STT.Language).
		Msg("starting voicechat")

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var eg errgroup.Group
	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("received interrupt signal, shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})
	eg.Go(func() error {
		if err := srv.Listen(cfg.Addr); err != nil {
			stop()
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	return eg.Wait()
}
