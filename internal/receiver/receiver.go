// Package receiver reassembles framed sessions: per-session chunk and parity
// state, duplicate suppression, FEC-triggered recovery, adaptive timeouts,
// and the integrity gate before delivery.
package receiver

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/wavectl/internal/codec"
	"github.com/danmuck/wavectl/internal/fec"
	"github.com/danmuck/wavectl/internal/observability"
	"github.com/danmuck/wavectl/internal/packet"
	"github.com/danmuck/wavectl/internal/transport"
)

// Timeouts parameterises the receive-session deadline:
// max(Min, Base + total*PerPacket*speedMult).
type Timeouts struct {
	Base      time.Duration
	PerPacket time.Duration
	Min       time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Base:      30 * time.Second,
		PerPacket: 5 * time.Second,
		Min:       60 * time.Second,
	}
}

// Progress describes reassembly state after a stored packet.
type Progress struct {
	Type    string
	SID     string
	Current int
	Total   int
}

// Callbacks receive completed payloads and progress events. OnFile takes the
// raw FILE frame, whether it arrived directly or through reassembly.
type Callbacks struct {
	OnText     func(string)
	OnFile     func(string)
	OnProgress func(Progress)
}

// Receiver owns the per-session reassembly state. One Receiver serves all
// concurrent sessions; the sid keeps their state apart.
type Receiver struct {
	mu       sync.Mutex
	sessions map[string]*session

	cb       Callbacks
	timeouts Timeouts
	protocol string
	logger   zerolog.Logger
}

type session struct {
	sid          string
	total        int
	expectedHash string
	compressed   bool
	scheme       fec.Scheme
	chunks       map[int][]byte
	parity       map[string][]byte
	seen         map[string]struct{}
	timer        *time.Timer
	done         bool
}

// New constructs a receiver. protocol selects the speed multiplier applied to
// session timeouts; it is the tag the local modem listens with.
func New(cb Callbacks, timeouts Timeouts, protocol string, logger zerolog.Logger) *Receiver {
	return &Receiver{
		sessions: make(map[string]*session),
		cb:       cb,
		timeouts: timeouts,
		protocol: protocol,
		logger:   logger,
	}
}

// Run consumes decoded frames from the modem until the channel closes or the
// context is cancelled.
func (r *Receiver) Run(ctx context.Context, modem transport.Modem) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-modem.Frames():
			if !ok {
				return nil
			}
			r.HandleFrame(frame)
		}
	}
}

// HandleFrame processes one decoded frame. Frames without a structured prefix
// deliver as plaintext; FILE frames reroute to the file adapter; everything
// else dispatches through the packet grammar with drop-not-abort semantics.
func (r *Receiver) HandleFrame(raw string) {
	if !packet.Structured(raw) {
		observability.RecordFrameRx("text")
		if r.cb.OnText != nil {
			r.cb.OnText(raw)
		}
		return
	}
	if strings.HasPrefix(raw, packet.FilePrefix) {
		observability.RecordFrameRx("file")
		if r.cb.OnFile != nil {
			r.cb.OnFile(raw)
		}
		return
	}

	v, err := packet.Parse(raw)
	if err != nil {
		r.logger.Debug().Str("frame", raw).Err(err).Msg("frame_dropped")
		observability.RecordFrameDrop("malformed")
		return
	}

	switch p := v.(type) {
	case packet.Start:
		observability.RecordFrameRx("start")
		r.onStart(p)
	case packet.Data:
		observability.RecordFrameRx("data")
		r.onData(p)
	case packet.Parity:
		observability.RecordFrameRx("parity")
		r.onParity(p)
	case packet.End:
		observability.RecordFrameRx("end")
		r.onEnd(p)
	}
}

// SessionCount reports how many sessions are currently open.
func (r *Receiver) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// onStart opens a session. A START for an existing sid replaces it: last
// START wins and the old timer is cancelled before the new one starts.
func (r *Receiver) onStart(p packet.Start) {
	scheme := fec.DefaultScheme
	if tok, ok := p.SchemeToken(); ok {
		scheme = fec.ResolveOrDefault(tok)
	}

	deadline := r.sessionTimeout(p.Total)

	r.mu.Lock()
	if old, ok := r.sessions[p.SID]; ok {
		old.timer.Stop()
		old.done = true
		delete(r.sessions, p.SID)
		r.logger.Warn().Str("sid", p.SID).Msg("session_replaced")
	}
	sess := &session{
		sid:          p.SID,
		total:        p.Total,
		expectedHash: p.Hash,
		compressed:   p.Compressed(),
		scheme:       scheme,
		chunks:       make(map[int][]byte),
		parity:       make(map[string][]byte),
		seen:         make(map[string]struct{}),
	}
	sess.timer = time.AfterFunc(deadline, func() { r.expire(p.SID) })
	r.sessions[p.SID] = sess
	r.mu.Unlock()

	r.logger.Info().
		Str("sid", p.SID).
		Int("total", p.Total).
		Str("scheme", scheme.Name).
		Bool("compressed", sess.compressed).
		Dur("timeout", deadline).
		Msg("session_open")

	// A zero-chunk session completes immediately if its digest matches.
	r.afterPacket(p.SID)
}

func (r *Receiver) onData(p packet.Data) {
	r.mu.Lock()
	sess, ok := r.sessions[p.SID]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug().Str("sid", p.SID).Int("seq", p.Seq).Msg("data_without_session")
		observability.RecordFrameDrop("no_session")
		return
	}
	if !packet.ValidSeq(p.Seq, sess.total) {
		r.mu.Unlock()
		observability.RecordFrameDrop("bad_seq")
		return
	}
	id := packet.ID(packet.KindData, p.SID, strconv.Itoa(p.Seq))
	if _, dup := sess.seen[id]; dup {
		r.mu.Unlock()
		observability.RecordFrameDrop("duplicate")
		return
	}
	chunk, err := codec.DecodeB64(p.Payload)
	if err != nil {
		r.mu.Unlock()
		r.logger.Debug().Str("sid", p.SID).Int("seq", p.Seq).Err(err).Msg("data_payload_invalid")
		observability.RecordFrameDrop("bad_base64")
		return
	}
	sess.seen[id] = struct{}{}
	sess.chunks[p.Seq] = chunk
	r.mu.Unlock()

	r.afterPacket(p.SID)
}

func (r *Receiver) onParity(p packet.Parity) {
	canonical := fec.NormaliseID(p.ParityID)
	if _, ok := fec.ParseID(canonical); !ok {
		observability.RecordFrameDrop("bad_parity_id")
		return
	}

	r.mu.Lock()
	sess, ok := r.sessions[p.SID]
	if !ok {
		r.mu.Unlock()
		observability.RecordFrameDrop("no_session")
		return
	}
	id := packet.ID(packet.KindParity, p.SID, p.ParityID)
	if _, dup := sess.seen[id]; dup {
		r.mu.Unlock()
		observability.RecordFrameDrop("duplicate")
		return
	}
	sym, err := codec.DecodeB64(p.Payload)
	if err != nil || len(sym) != codec.ChunkSize {
		r.mu.Unlock()
		r.logger.Debug().Str("sid", p.SID).Str("parity", canonical).Msg("parity_payload_invalid")
		observability.RecordFrameDrop("bad_parity")
		return
	}
	sess.seen[id] = struct{}{}
	sess.parity[canonical] = sym
	r.mu.Unlock()

	r.afterPacket(p.SID)
}

// onEnd is advisory: reassembly does not depend on it and it never clears the
// session.
func (r *Receiver) onEnd(p packet.End) {
	r.mu.Lock()
	_, ok := r.sessions[p.SID]
	r.mu.Unlock()
	if ok {
		r.logger.Debug().Str("sid", p.SID).Msg("session_end_marker")
	}
}

// afterPacket runs the recovery passes and, if the session completed, the
// integrity pipeline. Delivery callbacks fire outside the lock.
func (r *Receiver) afterPacket(sid string) {
	r.mu.Lock()
	sess, ok := r.sessions[sid]
	if !ok {
		r.mu.Unlock()
		return
	}

	recovered := fec.Recover(sess.chunks, sess.parity, sess.total, sess.scheme)
	if len(sess.chunks) < sess.total {
		recovered += fec.AggressiveRecover(sess.chunks, sess.parity)
	}
	if recovered > 0 {
		observability.RecordFECRecovery(recovered)
		r.logger.Info().Str("sid", sid).Int("chunks", recovered).Msg("fec_recovered")
	}

	if r.cb.OnProgress != nil {
		progress := Progress{Type: "data", SID: sid, Current: len(sess.chunks), Total: sess.total}
		defer func() { r.cb.OnProgress(progress) }()
	}

	if len(sess.chunks) < sess.total {
		r.mu.Unlock()
		return
	}

	payload := concatChunks(sess.chunks, sess.total)
	actual := codec.DigestB64(payload)
	if actual != sess.expectedHash {
		r.closeLocked(sess, "aborted_hash")
		r.mu.Unlock()
		r.logger.Error().
			Str("sid", sid).
			Str("expected", sess.expectedHash).
			Str("actual", actual).
			Msg("hash_mismatch")
		return
	}

	if sess.compressed {
		expanded, err := codec.Expand(payload)
		if err != nil {
			r.logger.Warn().Str("sid", sid).Err(err).Msg("gunzip_failed_delivering_raw")
		} else {
			payload = expanded
		}
	}

	r.closeLocked(sess, "delivered")
	r.mu.Unlock()

	r.logger.Info().Str("sid", sid).Int("bytes", len(payload)).Msg("session_delivered")
	r.deliver(string(payload))
}

// deliver routes a reconstructed message: FILE payloads go to the file
// adapter, everything else is text.
func (r *Receiver) deliver(msg string) {
	if strings.HasPrefix(msg, packet.FilePrefix) {
		if r.cb.OnFile != nil {
			r.cb.OnFile(msg)
		}
		return
	}
	if r.cb.OnText != nil {
		r.cb.OnText(msg)
	}
}

// closeLocked transitions a session out of OPEN exactly once: the timer is
// cancelled and the map entry removed. Callers hold r.mu.
func (r *Receiver) closeLocked(sess *session, outcome string) {
	if sess.done {
		return
	}
	sess.done = true
	sess.timer.Stop()
	delete(r.sessions, sess.sid)
	observability.RecordSessionOutcome(outcome)
}

// expire fires on the session deadline. The received/missing/parity inventory
// goes to the log before the state is dropped.
func (r *Receiver) expire(sid string) {
	r.mu.Lock()
	sess, ok := r.sessions[sid]
	if !ok || sess.done {
		r.mu.Unlock()
		return
	}
	var missing []int
	for seq := 1; seq <= sess.total; seq++ {
		if _, ok := sess.chunks[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	received := len(sess.chunks)
	parityCount := len(sess.parity)
	r.closeLocked(sess, "aborted_timeout")
	r.mu.Unlock()

	r.logger.Warn().
		Str("sid", sid).
		Int("received", received).
		Ints("missing", missing).
		Int("parity", parityCount).
		Msg("session_timeout")
}

func (r *Receiver) sessionTimeout(total int) time.Duration {
	mult := transport.SpeedMultiplier(r.protocol)
	d := r.timeouts.Base + time.Duration(total)*r.timeouts.PerPacket*time.Duration(mult)
	if d < r.timeouts.Min {
		d = r.timeouts.Min
	}
	return d
}

func concatChunks(chunks map[int][]byte, total int) []byte {
	seqs := make([]int, 0, len(chunks))
	for seq := range chunks {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	var buf bytes.Buffer
	for _, seq := range seqs {
		if seq < 1 || seq > total {
			continue
		}
		buf.Write(chunks[seq])
	}
	return buf.Bytes()
}
