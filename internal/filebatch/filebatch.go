// Package filebatch carries whole files over the link as a side channel.
// A batch payload reads FILE:{batch}:{name}:{b64}; the receiver reroutes
// any payload with that prefix here instead of printing it.
package filebatch

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/wavectl/internal/codec"
	"github.com/danmuck/wavectl/internal/packet"
)

var (
	ErrMalformed = errors.New("filebatch: malformed batch payload")
	ErrEmptyName = errors.New("filebatch: empty file name")
)

// Batch is one file in transit. Data holds the raw file bytes.
type Batch struct {
	ID   string
	Name string
	Data []byte
}

// NewBatchID mirrors the session id shape so batch ids sort by time.
func NewBatchID() string {
	return fmt.Sprintf("%d-%06d", time.Now().Unix(), rand.Intn(1_000_000))
}

// Pack renders the batch payload. The name is reduced to its base so a
// sender cannot smuggle directory components across the link.
func Pack(b Batch) (string, error) {
	name := filepath.Base(strings.TrimSpace(b.Name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", ErrEmptyName
	}
	if strings.Contains(name, ":") {
		return "", fmt.Errorf("%w: name %q contains a colon", ErrMalformed, name)
	}
	id := b.ID
	if id == "" {
		id = NewBatchID()
	}
	return packet.FilePrefix + id + ":" + name + ":" + codec.EncodeB64(b.Data), nil
}

// Parse splits a FILE payload back into a batch. The base64 field is the
// final segment, so names with colons are rejected rather than guessed at.
func Parse(payload string) (Batch, error) {
	if !strings.HasPrefix(payload, packet.FilePrefix) {
		return Batch{}, fmt.Errorf("%w: missing FILE prefix", ErrMalformed)
	}
	rest := payload[len(packet.FilePrefix):]
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return Batch{}, fmt.Errorf("%w: want FILE:{batch}:{name}:{b64}", ErrMalformed)
	}
	id, name, b64 := parts[0], parts[1], parts[2]
	if id == "" || name == "" {
		return Batch{}, fmt.Errorf("%w: empty batch id or name", ErrMalformed)
	}
	data, err := codec.DecodeB64(b64)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Batch{ID: id, Name: name, Data: data}, nil
}

// PackFile reads a file from disk and packs it under its base name.
func PackFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("filebatch: read %s: %w", path, err)
	}
	return Pack(Batch{ID: NewBatchID(), Name: filepath.Base(path), Data: data})
}

// WriteTo stores the batch under dir and returns the written path. The
// name is flattened to its base again on the way out; a received batch
// never escapes the inbox directory.
func (b Batch) WriteTo(dir string) (string, error) {
	name := filepath.Base(b.Name)
	if name == "" || name == "." || name == ".." {
		return "", ErrEmptyName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("filebatch: inbox %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(dir, b.ID+"_"+name)
	}
	if err := os.WriteFile(path, b.Data, 0o644); err != nil {
		return "", fmt.Errorf("filebatch: write %s: %w", path, err)
	}
	return path, nil
}
