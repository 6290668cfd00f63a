package main

import (
	"fmt"
	"os"

	"github.com/danmuck/wavectl/internal/logging"
)

func main() {
	logging.ConfigureRuntime()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "receive":
		err = runReceive(os.Args[2:])
	case "sessions":
		err = runSessions(os.Args[2:])
	case "resend":
		err = runResend(os.Args[2:])
	case "init-config":
		err = runInitConfig(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "wavectl: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "wavectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `wavectl - framed file and message transfer over acoustic modems

Usage:
  wavectl send        -m "text" | -file path [flags]
  wavectl receive     [flags]
  wavectl sessions    [-addr host:port]
  wavectl resend      -sid ID [-chunks 1,2] [-parity 1-3,4-6-1] [-addr host:port]
  wavectl init-config [-o path] [-f]

Run "wavectl <command> -h" for command flags.
`)
}
