package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/wavectl/internal/filebatch"
	"github.com/danmuck/wavectl/internal/monitor"
	"github.com/danmuck/wavectl/internal/observability"
	"github.com/danmuck/wavectl/internal/receiver"
	"github.com/danmuck/wavectl/internal/sender"
	"github.com/danmuck/wavectl/internal/transport"
)

// runReceive is the long-running link node: reassembly, the monitor API,
// the outbox watcher, and the session GC ticker all hang off one modem.
func runReceive(args []string) error {
	fs := flag.NewFlagSet("receive", flag.ExitOnError)
	cfgPath := fs.String("c", "", "link config file (toml)")
	overridePath := fs.String("override", defaultConfigPath, "local override config file")
	port := fs.String("port", "", "serial port of the modem")
	baud := fs.Int("baud", 0, "serial baud rate")
	inbox := fs.String("inbox", "", "directory for received file batches")
	outbox := fs.String("outbox", "", "directory watched for files to send")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadLinkConfig(*cfgPath, *overridePath)
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *baud > 0 {
		cfg.Serial.BaudRate = *baud
	}
	if *inbox != "" {
		cfg.InboxDir = *inbox
	}
	if *outbox != "" {
		cfg.OutboxDir = *outbox
	}

	logger := observability.InitLogger(cfg.Name)

	modem, err := transport.OpenSerial(cfg.SerialModemConfig())
	if err != nil {
		return err
	}
	defer modem.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snd := sender.New(modem, sender.NewStore(), logger)

	cb := receiver.Callbacks{
		OnText: func(text string) {
			fmt.Fprintln(os.Stdout, text)
			logger.Info().Int("bytes", len(text)).Msg("message_delivered")
		},
		OnFile: func(payload string) {
			batch, err := filebatch.Parse(payload)
			if err != nil {
				logger.Warn().Err(err).Msg("file_batch_rejected")
				return
			}
			path, err := batch.WriteTo(cfg.InboxDir)
			if err != nil {
				logger.Error().Err(err).Str("name", batch.Name).Msg("file_batch_store_failed")
				return
			}
			fmt.Fprintf(os.Stdout, "received file %s -> %s\n", batch.Name, path)
			logger.Info().Str("batch", batch.ID).Str("path", path).Msg("file_batch_stored")
		},
		OnProgress: func(ev receiver.Progress) {
			logger.Debug().Str("sid", ev.SID).Str("type", ev.Type).
				Int("current", ev.Current).Int("total", ev.Total).Msg("receive_progress")
		},
	}
	rcv := receiver.New(cb, cfg.Timeouts(), cfg.Protocol, logger)

	errs := make(chan error, 3)

	srv := monitor.New(cfg.Name, cfg.Monitor.Addr, cfg.Monitor.CorsOrigins, snd, logger)
	srv.RegisterRoutes()
	go func() { errs <- srv.Run() }()

	if cfg.OutboxDir != "" {
		w := filebatch.NewWatcher(cfg.OutboxDir, func(ctx context.Context, payload []byte) error {
			_, err := snd.Send(ctx, payload, sender.Options{
				Protocol: cfg.Protocol,
				Compress: cfg.Compression,
				Scheme:   cfg.FECScheme(),
			})
			return err
		}, true, logger)
		go func() { errs <- w.Run(ctx) }()
	}

	if age := cfg.GCAge(); age > 0 {
		go func() {
			ticker := time.NewTicker(age / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if removed := snd.Store().ClearOld(age); removed > 0 {
						logger.Info().Int("removed", removed).Msg("session_gc")
					}
				}
			}
		}()
	}

	logger.Info().Str("port", cfg.Serial.Port).Str("protocol", cfg.Protocol).Msg("link_listen")

	go func() { errs <- rcv.Run(ctx, modem) }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("link_shutdown")
		return nil
	case err := <-errs:
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
}
