// Package sender drives outgoing transmissions: slice, hash, protect with
// parity, serialise, and emit in order over the modem. Completed and
// partially-sent sessions are retained for caller-driven replay; the protocol
// has no feedback path of its own.
package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/wavectl/internal/codec"
	"github.com/danmuck/wavectl/internal/fec"
	"github.com/danmuck/wavectl/internal/observability"
	"github.com/danmuck/wavectl/internal/packet"
	"github.com/danmuck/wavectl/internal/transport"
)

// Progress describes one emitted packet.
type Progress struct {
	Type    string
	Current int
	Total   int
	SID     string
	Packet  string
	FECInfo string
}

// Options select the behaviour of a single Send.
type Options struct {
	Protocol string
	Compress bool
	Scheme   fec.Scheme
	Progress func(Progress)
}

// Sender emits framed sessions over a modem and retains them in a store.
type Sender struct {
	modem  transport.Modem
	store  *Store
	logger zerolog.Logger
}

func New(modem transport.Modem, store *Store, logger zerolog.Logger) *Sender {
	return &Sender{modem: modem, store: store, logger: logger}
}

// Store exposes the retransmit store backing this sender.
func (s *Sender) Store() *Store {
	return s.store
}

// Send transmits payload as one session and returns its sid. The session is
// placed in the store before the first frame goes out, so a failed emission
// leaves a partial session that can be completed by explicit resend calls.
func (s *Sender) Send(ctx context.Context, payload []byte, opts Options) (string, error) {
	sid := packet.NewSID()

	var flags []string
	if opts.Compress {
		packed, err := codec.Compress(payload)
		if err != nil {
			return "", fmt.Errorf("sender: compress: %w", err)
		}
		payload = packed
		flags = append(flags, packet.FlagCompressed)
	}
	if tok := opts.Scheme.Flag(); tok != "" {
		flags = append(flags, tok)
	}

	hash := codec.DigestB64(payload)
	split, err := codec.Split(payload, codec.ChunkSize)
	if err != nil {
		return "", fmt.Errorf("sender: split: %w", err)
	}
	chunks := make(map[int][]byte, len(split))
	for i, chunk := range split {
		chunks[i+1] = chunk
	}
	total := len(split)

	plan, parity := fec.BuildParity(chunks, total, opts.Scheme)
	parityIDs := make([]string, 0, len(plan))
	for _, g := range plan {
		parityIDs = append(parityIDs, g.ID())
	}

	sess := &Session{
		SID:       sid,
		Total:     total,
		Hash:      hash,
		Flags:     flags,
		Protocol:  opts.Protocol,
		Scheme:    opts.Scheme,
		Chunks:    chunks,
		Parity:    parity,
		ParityIDs: parityIDs,
		CreatedAt: time.Now(),
	}
	s.store.put(sess)

	s.logger.Info().
		Str("sid", sid).
		Int("total", total).
		Str("scheme", opts.Scheme.Name).
		Str("protocol", opts.Protocol).
		Bool("compress", opts.Compress).
		Msg("send_session_start")

	start := packet.Start{SID: sid, Hash: hash, Total: total, Flags: flags}
	if err := s.emit(ctx, start.Serialise(), opts, Progress{
		Type: "start", Current: 0, Total: total, SID: sid,
	}); err != nil {
		return sid, err
	}

	for seq := 1; seq <= total; seq++ {
		d := packet.Data{SID: sid, Seq: seq, Payload: codec.EncodeB64(chunks[seq])}
		if err := s.emit(ctx, d.Serialise(), opts, Progress{
			Type: "data", Current: seq, Total: total, SID: sid,
		}); err != nil {
			return sid, err
		}
		s.store.markSent(sid, 1, 0)
	}

	for i, id := range parityIDs {
		p := packet.Parity{SID: sid, ParityID: id, Payload: codec.EncodeB64(parity[id])}
		if err := s.emit(ctx, p.Serialise(), opts, Progress{
			Type: "parity", Current: i + 1, Total: len(parityIDs), SID: sid, FECInfo: id,
		}); err != nil {
			return sid, err
		}
		s.store.markSent(sid, 0, 1)
	}

	end := packet.End{SID: sid}
	if err := s.emit(ctx, end.Serialise(), opts, Progress{
		Type: "end", Current: total, Total: total, SID: sid,
	}); err != nil {
		return sid, err
	}

	s.logger.Info().Str("sid", sid).Int("total", total).Msg("send_session_done")
	return sid, nil
}

// ResendChunks replays the given DATA packets in the given order using the
// session's original protocol tag.
func (s *Sender) ResendChunks(ctx context.Context, sid string, seqs []int) error {
	sess, ok := s.store.get(sid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sid)
	}
	opts := Options{Protocol: sess.Protocol}
	for _, seq := range seqs {
		chunk, ok := sess.Chunks[seq]
		if !ok {
			return fmt.Errorf("sender: session %s has no chunk %d", sid, seq)
		}
		d := packet.Data{SID: sid, Seq: seq, Payload: codec.EncodeB64(chunk)}
		if err := s.emit(ctx, d.Serialise(), opts, Progress{
			Type: "data", Current: seq, Total: sess.Total, SID: sid,
		}); err != nil {
			return err
		}
		s.store.markSent(sid, 1, 0)
	}
	return nil
}

// ResendParity replays the given PARITY packets. Identifiers normalise before
// lookup, so a bare "{start}-{end}" addresses the primary symbol.
func (s *Sender) ResendParity(ctx context.Context, sid string, ids []string) error {
	sess, ok := s.store.get(sid)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sid)
	}
	opts := Options{Protocol: sess.Protocol}
	for _, id := range ids {
		canonical := fec.NormaliseID(id)
		sym, ok := sess.Parity[canonical]
		if !ok {
			return fmt.Errorf("sender: session %s has no parity %s", sid, canonical)
		}
		p := packet.Parity{SID: sid, ParityID: canonical, Payload: codec.EncodeB64(sym)}
		if err := s.emit(ctx, p.Serialise(), opts, Progress{
			Type: "parity", Current: 0, Total: sess.Total, SID: sid, FECInfo: canonical,
		}); err != nil {
			return err
		}
		s.store.markSent(sid, 0, 1)
	}
	return nil
}

// emit transmits one frame, publishes its progress event, then pauses for the
// protocol's inter-packet delay.
func (s *Sender) emit(ctx context.Context, frame string, opts Options, ev Progress) error {
	if err := s.modem.Transmit(ctx, frame, opts.Protocol); err != nil {
		s.logger.Error().Str("sid", ev.SID).Str("type", ev.Type).Err(err).Msg("frame_transmit_failed")
		return fmt.Errorf("sender: transmit %s: %w", ev.Type, err)
	}
	observability.RecordFrameTx(ev.Type)
	ev.Packet = frame
	if opts.Progress != nil {
		opts.Progress(ev)
	}
	if ms := transport.InterPacketDelayMS(opts.Protocol); ms > 0 {
		timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
