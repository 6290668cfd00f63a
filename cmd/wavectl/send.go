package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wavectl/internal/filebatch"
	"github.com/danmuck/wavectl/internal/sender"
	"github.com/danmuck/wavectl/internal/transport"
)

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	cfgPath := fs.String("c", "", "link config file (toml)")
	overridePath := fs.String("override", defaultConfigPath, "local override config file")
	message := fs.String("m", "", "message text to send")
	filePath := fs.String("file", "", "file to send as a batch")
	protocol := fs.String("protocol", "", "speed profile: NORMAL, FAST, FASTEST")
	scheme := fs.String("scheme", "", "FEC scheme token")
	compress := fs.Bool("z", false, "gzip the payload")
	port := fs.String("port", "", "serial port of the modem")
	baud := fs.Int("baud", 0, "serial baud rate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if (*message == "") == (*filePath == "") {
		return fmt.Errorf("exactly one of -m or -file is required")
	}

	cfg, err := loadLinkConfig(*cfgPath, *overridePath)
	if err != nil {
		return err
	}
	if *protocol != "" {
		cfg.Protocol = *protocol
	}
	if *scheme != "" {
		cfg.Scheme = *scheme
	}
	if *compress {
		cfg.Compression = true
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *baud > 0 {
		cfg.Serial.BaudRate = *baud
	}

	var payload []byte
	if *message != "" {
		payload = []byte(*message)
	} else {
		packed, err := filebatch.PackFile(*filePath)
		if err != nil {
			return err
		}
		payload = []byte(packed)
	}

	modem, err := transport.OpenSerial(cfg.SerialModemConfig())
	if err != nil {
		return err
	}
	defer modem.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snd := sender.New(modem, sender.NewStore(), log.Logger)
	sid, err := snd.Send(ctx, payload, sender.Options{
		Protocol: cfg.Protocol,
		Compress: cfg.Compression,
		Scheme:   cfg.FECScheme(),
		Progress: printProgress,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "sent session %s\n", sid)
	return nil
}

func printProgress(ev sender.Progress) {
	switch ev.Type {
	case "data":
		fmt.Fprintf(os.Stdout, "  chunk %d/%d\n", ev.Current, ev.Total)
	case "parity":
		fmt.Fprintf(os.Stdout, "  parity %s\n", ev.FECInfo)
	default:
		fmt.Fprintf(os.Stdout, "  %s %s\n", ev.Type, ev.SID)
	}
}
