package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/wavectl/internal/config"
	"github.com/danmuck/wavectl/internal/monitor"
	"github.com/danmuck/wavectl/internal/sender"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// runSessions prints the send-session table of a running link node.
func runSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	addr := fs.String("addr", "localhost:9300", "monitor address of the link node")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := httpClient.Get("http://" + *addr + "/sessions")
	if err != nil {
		return fmt.Errorf("query sessions: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sessions: monitor returned %s", resp.Status)
	}

	var body struct {
		Sessions []sender.Info `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode sessions: %w", err)
	}

	if len(body.Sessions) == 0 {
		fmt.Fprintln(os.Stdout, "no sessions")
		return nil
	}
	fmt.Fprintf(os.Stdout, "%-18s %-22s %7s %7s %7s  %s\n",
		"SID", "SCHEME", "TOTAL", "CHUNKS", "PARITY", "CREATED")
	for _, info := range body.Sessions {
		fmt.Fprintf(os.Stdout, "%-18s %-22s %7d %7d %7d  %s\n",
			info.SID, info.Scheme, info.Total, info.SentChunks, info.SentParity,
			info.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// runResend asks a running link node to replay symbols for one session.
func runResend(args []string) error {
	fs := flag.NewFlagSet("resend", flag.ExitOnError)
	addr := fs.String("addr", "localhost:9300", "monitor address of the link node")
	sid := fs.String("sid", "", "session id to replay from")
	chunks := fs.String("chunks", "", "comma-separated chunk numbers")
	parity := fs.String("parity", "", "comma-separated parity ids")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sid == "" {
		return fmt.Errorf("-sid is required")
	}

	req := monitor.ResendRequest{}
	for _, field := range splitList(*chunks) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return fmt.Errorf("bad chunk number %q", field)
		}
		req.Chunks = append(req.Chunks, n)
	}
	req.Parity = splitList(*parity)
	if len(req.Chunks) == 0 && len(req.Parity) == 0 {
		return fmt.Errorf("nothing to resend: give -chunks and/or -parity")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(
		"http://"+*addr+"/sessions/"+*sid+"/resend",
		"application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("resend: monitor returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	fmt.Fprintf(os.Stdout, "resent %d chunks, %d parity for %s\n",
		len(req.Chunks), len(req.Parity), *sid)
	return nil
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	out := fs.String("o", "link.toml", "output path")
	force := fs.Bool("f", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.WriteTemplate(*out, "link", *force); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *out)
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, field := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(field); v != "" {
			out = append(out, v)
		}
	}
	return out
}
