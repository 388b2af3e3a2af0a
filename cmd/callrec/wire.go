package main

import (
	"fmt"
	"log/slog"

	"callrec/config"
	"callrec/internal/application"
	"callrec/internal/domain"
	"callrec/internal/infra/audio"
	"callrec/internal/infra/homeassistant"
	"callrec/internal/infra/indicator"
	"callrec/internal/infra/pushover"
	"callrec/internal/infra/sink"
	"callrec/internal/observe"
)

func buildManager(cfg *config.Config, metrics *observe.Metrics, logger *slog.Logger) (*application.CaptureManager, error) {
	format := domain.DefaultAudioFormat()
	format.SampleRate = cfg.Capture.SampleRate

	mic, err := createMicrophone(cfg.Capture, logger)
	if err != nil {
		return nil, err
	}
	playback, err := createPlayback(cfg.Capture, logger)
	if err != nil {
		return nil, err
	}

	marker, err := indicator.NewFile(cfg.Indicator.Path, logger)
	if err != nil {
		return nil, err
	}
	indicators := application.Indicators{marker}

	var notifiers application.Notifiers
	if cfg.Pushover.Enabled {
		notifiers = append(notifiers, pushover.NewClient(cfg.Pushover.Token, cfg.Pushover.UserKey))
	}
	if ha := cfg.HomeAssistant; ha.Enabled {
		client := homeassistant.NewClient(ha.URL, ha.Token, homeassistant.Options{
			EntityID:      ha.EntityID,
			NotifyService: ha.NotifyService,
		})
		indicators = append(indicators, client)
		if ha.NotifyService != "" {
			notifiers = append(notifiers, client)
		}
	}

	logger.Info("capture pipeline configured",
		"microphone", mic.Name(),
		"playback", playback.Name(),
		"sink", cfg.Capture.Sink,
		"format", format.String(),
	)

	return application.NewCaptureManager(application.ManagerConfig{
		Microphone:     mic,
		Playback:       playback,
		Sink:           createSink(cfg.Capture, logger),
		Indicator:      indicators,
		Notifier:       notifiers,
		Metrics:        metrics,
		Format:         format,
		FrameBytes:     cfg.Capture.FrameBytes,
		AutoStopOnIdle: *cfg.Capture.AutoStopOnIdle,
		Logger:         logger,
	}), nil
}

func createMicrophone(cfg config.CaptureConfig, logger *slog.Logger) (application.AudioSource, error) {
	switch cfg.Microphone {
	case "portaudio":
		return audio.NewMicrophoneSource(cfg.FrameBytes, logger), nil
	case "file":
		return audio.NewFileSource(cfg.MicFile, domain.SourceMicrophone, audio.FileOptions{
			Realtime: cfg.Realtime,
		}), nil
	default:
		return nil, fmt.Errorf("unknown microphone source %q", cfg.Microphone)
	}
}

func createPlayback(cfg config.CaptureConfig, logger *slog.Logger) (application.AudioSource, error) {
	switch cfg.Playback {
	case "loopback":
		return audio.NewLoopbackSource(audio.LoopbackConfig{
			Usages:      cfg.DomainUsages(),
			ReadTimeout: cfg.ReadTimeoutDuration(),
		}, logger), nil
	case "file":
		return audio.NewFileSource(cfg.PlaybackFile, domain.SourcePlayback, audio.FileOptions{
			Usages:   cfg.DomainUsages(),
			Realtime: cfg.Realtime,
		}), nil
	default:
		return nil, fmt.Errorf("unknown playback source %q", cfg.Playback)
	}
}

func createSink(cfg config.CaptureConfig, logger *slog.Logger) application.OutputSink {
	if cfg.Sink == "shared" {
		return sink.NewSharedStorageSink(cfg.SharedDir, logger)
	}
	return sink.NewLocalFileSink(cfg.LocalDir, logger)
}
