package receiver

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/wavectl/internal/codec"
	"github.com/danmuck/wavectl/internal/fec"
	"github.com/danmuck/wavectl/internal/packet"
	"github.com/danmuck/wavectl/internal/testutil/testlog"
)

type delivery struct {
	texts []string
	files []string
}

func newTestReceiver(t *testing.T, timeouts Timeouts) (*Receiver, *delivery) {
	t.Helper()
	testlog.Start(t)
	d := &delivery{}
	cb := Callbacks{
		OnText: func(msg string) { d.texts = append(d.texts, msg) },
		OnFile: func(msg string) { d.files = append(d.files, msg) },
	}
	return New(cb, timeouts, "FASTEST", zerolog.Nop()), d
}

func shortTimeouts() Timeouts {
	return Timeouts{Base: 20 * time.Millisecond, PerPacket: time.Millisecond, Min: 40 * time.Millisecond}
}

// buildSession renders the full frame sequence for a payload, mirroring the
// sender's emission order.
func buildSession(sid string, payload []byte, scheme fec.Scheme, compress bool) []string {
	var flags []string
	if compress {
		packed, err := codec.Compress(payload)
		if err != nil {
			panic(err)
		}
		payload = packed
		flags = append(flags, packet.FlagCompressed)
	}
	if tok := scheme.Flag(); tok != "" {
		flags = append(flags, tok)
	}
	split, err := codec.Split(payload, codec.ChunkSize)
	if err != nil {
		panic(err)
	}
	chunks := make(map[int][]byte, len(split))
	for i, c := range split {
		chunks[i+1] = c
	}
	total := len(split)

	frames := []string{
		packet.Start{SID: sid, Hash: codec.DigestB64(payload), Total: total, Flags: flags}.Serialise(),
	}
	for seq := 1; seq <= total; seq++ {
		frames = append(frames, packet.Data{SID: sid, Seq: seq, Payload: codec.EncodeB64(chunks[seq])}.Serialise())
	}
	plan, parity := fec.BuildParity(chunks, total, scheme)
	for _, g := range plan {
		frames = append(frames, packet.Parity{SID: sid, ParityID: g.ID(), Payload: codec.EncodeB64(parity[g.ID()])}.Serialise())
	}
	frames = append(frames, packet.End{SID: sid}.Serialise())
	return frames
}

func feed(r *Receiver, frames []string) {
	for _, f := range frames {
		r.HandleFrame(f)
	}
}

func TestRoundTripNoLoss(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := "Hello World! This is a test message."
	feed(r, buildSession("1-000001", []byte(payload), fec.None, false))

	if len(d.texts) != 1 || d.texts[0] != payload {
		t.Fatalf("delivery: %+v", d.texts)
	}
	if r.SessionCount() != 0 {
		t.Fatalf("session not cleared after delivery")
	}
}

func TestRoundTripCompressed(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := strings.Repeat(`{"k":"v","n":42}`, 125) // 2000 bytes
	feed(r, buildSession("1-000002", []byte(payload), fec.StrongOverlapping3, true))

	if len(d.texts) != 1 || d.texts[0] != payload {
		t.Fatalf("compressed round trip failed: %d deliveries", len(d.texts))
	}
}

func TestSingleLossRecovered(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := strings.Repeat("Lorem ipsum dolor sit amet ", 12)[:300] // 4 chunks
	frames := buildSession("1-000003", []byte(payload), fec.Basic4, false)

	withheld := "D:1-000003:2:"
	for _, f := range frames {
		if strings.HasPrefix(f, withheld) {
			continue
		}
		r.HandleFrame(f)
	}
	if len(d.texts) != 1 || d.texts[0] != payload {
		t.Fatalf("recovery delivery failed: %d deliveries", len(d.texts))
	}
}

func TestAdjacentLossRecoveredViaOverlap(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := strings.Repeat("0123456789", 100) // 1000 bytes, 14 chunks
	frames := buildSession("1-000004", []byte(payload), fec.Overlapping3, false)

	// Two adjacent losses inside one main group: the single primary parity of
	// that group cannot carry both, the overlap groups can.
	for _, f := range frames {
		if strings.HasPrefix(f, "D:1-000004:4:") || strings.HasPrefix(f, "D:1-000004:5:") {
			continue
		}
		r.HandleFrame(f)
	}
	if len(d.texts) != 1 || d.texts[0] != payload {
		t.Fatalf("overlap recovery failed: %d deliveries", len(d.texts))
	}
}

func TestHashMismatchAborts(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := []byte(strings.Repeat("z", 50))
	frames := buildSession("1-000005", payload, fec.None, false)

	// Corrupt the digest in START.
	frames[0] = packet.Start{
		SID:   "1-000005",
		Hash:  codec.DigestB64([]byte("something else entirely")),
		Total: 1,
	}.Serialise()
	feed(r, frames)

	if len(d.texts) != 0 {
		t.Fatalf("bad digest must not deliver: %+v", d.texts)
	}
	if r.SessionCount() != 0 {
		t.Fatalf("aborted session must be deleted")
	}
}

func TestDuplicateImmunity(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := strings.Repeat("dup", 60) // 180 bytes, 3 chunks
	frames := buildSession("1-000006", []byte(payload), fec.Basic2, false)

	for _, f := range frames {
		r.HandleFrame(f)
		r.HandleFrame(f)
	}
	if len(d.texts) != 1 || d.texts[0] != payload {
		t.Fatalf("duplicate frames changed the outcome: %d deliveries", len(d.texts))
	}
}

func TestReorderImmunity(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := strings.Repeat("order", 60) // 300 bytes, 4 chunks
	frames := buildSession("1-000007", []byte(payload), fec.Basic4, false)

	// START first, then everything else reversed.
	r.HandleFrame(frames[0])
	for i := len(frames) - 1; i >= 1; i-- {
		r.HandleFrame(frames[i])
	}
	if len(d.texts) != 1 || d.texts[0] != payload {
		t.Fatalf("reordered frames failed: %d deliveries", len(d.texts))
	}
}

func TestConcurrentSessionsReconstructIndependently(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	a := buildSession("1-000008", []byte(strings.Repeat("aaaa", 50)), fec.Basic2, false)
	b := buildSession("1-000009", []byte(strings.Repeat("bbbb", 50)), fec.Basic2, false)

	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			r.HandleFrame(a[i])
		}
		if i < len(b) {
			r.HandleFrame(b[i])
		}
	}
	if len(d.texts) != 2 {
		t.Fatalf("expected two deliveries, got %d", len(d.texts))
	}
	got := map[string]bool{d.texts[0]: true, d.texts[1]: true}
	if !got[strings.Repeat("aaaa", 50)] || !got[strings.Repeat("bbbb", 50)] {
		t.Fatalf("session payloads mixed up")
	}
}

func TestSessionTimeout(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	start := packet.Start{SID: "1-000010", Hash: codec.DigestB64([]byte("x")), Total: 5}
	r.HandleFrame(start.Serialise())
	if r.SessionCount() != 1 {
		t.Fatalf("session not opened")
	}

	deadline := time.After(2 * time.Second)
	for r.SessionCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("session did not time out")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if len(d.texts) != 0 {
		t.Fatalf("timeout must not deliver")
	}
}

func TestLastStartWins(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := strings.Repeat("win", 30)
	frames := buildSession("1-000011", []byte(payload), fec.None, false)

	r.HandleFrame(frames[0])
	// A second START for the same sid discards prior state.
	r.HandleFrame(frames[0])
	feed(r, frames[1:])

	if len(d.texts) != 1 || d.texts[0] != payload {
		t.Fatalf("restarted session failed: %+v", d.texts)
	}
}

func TestDataWithoutSessionDropped(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	r.HandleFrame("D:9-999999:1:" + codec.EncodeB64([]byte("orphan")))
	if len(d.texts) != 0 || r.SessionCount() != 0 {
		t.Fatalf("orphan data must be dropped")
	}
}

func TestPlaintextPassthrough(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	r.HandleFrame("CQ CQ CQ de N0CALL")
	if len(d.texts) != 1 || d.texts[0] != "CQ CQ CQ de N0CALL" {
		t.Fatalf("plaintext passthrough failed: %+v", d.texts)
	}
}

func TestDirectFileFrameReroutes(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	r.HandleFrame("FILE:b-1:a.zip:AAAA")
	if len(d.texts) != 0 {
		t.Fatalf("file frame must not reach text callback")
	}
	if len(d.files) != 1 || d.files[0] != "FILE:b-1:a.zip:AAAA" {
		t.Fatalf("file frame not rerouted: %+v", d.files)
	}
}

func TestReassembledFilePayloadReroutes(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := "FILE:b-2:notes.zip:" + codec.EncodeB64([]byte("zipbytes"))
	feed(r, buildSession("1-000012", []byte(payload), fec.None, false))

	if len(d.texts) != 0 {
		t.Fatalf("reassembled file payload must suppress text delivery")
	}
	if len(d.files) != 1 || d.files[0] != payload {
		t.Fatalf("file payload not rerouted: %+v", d.files)
	}
}

func TestGunzipFailureDeliversRaw(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := []byte("not actually gzip data")
	// Flags claim compression but the bytes are not a gzip stream; the digest
	// covers the transmitted bytes, so the hash gate passes and the raw
	// concatenation is delivered with a warning.
	frames := []string{
		packet.Start{
			SID:   "1-000013",
			Hash:  codec.DigestB64(payload),
			Total: 1,
			Flags: []string{packet.FlagCompressed},
		}.Serialise(),
		packet.Data{SID: "1-000013", Seq: 1, Payload: codec.EncodeB64(payload)}.Serialise(),
	}
	feed(r, frames)
	if len(d.texts) != 1 || d.texts[0] != string(payload) {
		t.Fatalf("raw fallback failed: %+v", d.texts)
	}
}

func TestAggressiveFallbackUsesUnplannedParity(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := []byte(strings.Repeat("q", 200)) // 3 chunks
	split, _ := codec.Split(payload, codec.ChunkSize)
	chunks := map[int][]byte{1: split[0], 2: split[1], 3: split[2]}

	// Declared scheme BASIC_2 plans groups (1,2) and (3,3); a 1-3 parity is
	// outside that plan and only the aggressive pass can use it.
	parity := fec.Group{Start: 1, End: 3, Type: "0"}.Parity(chunks)
	frames := []string{
		packet.Start{
			SID:   "1-000014",
			Hash:  codec.DigestB64(payload),
			Total: 3,
			Flags: []string{"FBASIC_2"},
		}.Serialise(),
		packet.Data{SID: "1-000014", Seq: 1, Payload: codec.EncodeB64(chunks[1])}.Serialise(),
		packet.Parity{SID: "1-000014", ParityID: "1-3-0", Payload: codec.EncodeB64(parity)}.Serialise(),
		packet.Data{SID: "1-000014", Seq: 3, Payload: codec.EncodeB64(chunks[3])}.Serialise(),
	}
	feed(r, frames)
	if len(d.texts) != 1 || d.texts[0] != string(payload) {
		t.Fatalf("aggressive fallback failed: %d deliveries", len(d.texts))
	}
}

func TestParityIDNormalisation(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	payload := []byte(strings.Repeat("n", 150)) // 2 chunks
	split, _ := codec.Split(payload, codec.ChunkSize)
	chunks := map[int][]byte{1: split[0], 2: split[1]}
	parity := fec.Group{Start: 1, End: 2, Type: "0"}.Parity(chunks)

	frames := []string{
		packet.Start{
			SID:   "1-000015",
			Hash:  codec.DigestB64(payload),
			Total: 2,
			Flags: []string{"FBASIC_2"},
		}.Serialise(),
		// Bare range id normalises to 1-2-0.
		packet.Parity{SID: "1-000015", ParityID: "1-2", Payload: codec.EncodeB64(parity)}.Serialise(),
		packet.Data{SID: "1-000015", Seq: 2, Payload: codec.EncodeB64(chunks[2])}.Serialise(),
	}
	feed(r, frames)
	if len(d.texts) != 1 || d.texts[0] != string(payload) {
		t.Fatalf("normalised parity recovery failed: %d deliveries", len(d.texts))
	}
}

func TestMalformedFramesDropSilently(t *testing.T) {
	r, d := newTestReceiver(t, shortTimeouts())
	for _, raw := range []string{
		"S:",
		"D:1-000016:abc:QUJD",
		"P:1-000016::QUJD",
		"D:1-000016:1:!!!!",
	} {
		r.HandleFrame(raw)
	}
	if len(d.texts) != 0 || r.SessionCount() != 0 {
		t.Fatalf("malformed frames must not create state")
	}
}

func TestShortParityRejected(t *testing.T) {
	r, _ := newTestReceiver(t, shortTimeouts())
	start := packet.Start{SID: "1-000017", Hash: codec.DigestB64([]byte("xx")), Total: 1}
	r.HandleFrame(start.Serialise())
	// 8-byte decode is shorter than the symbol width.
	r.HandleFrame("P:1-000017:1-1-0:" + codec.EncodeB64([]byte("tooshort")))

	r.mu.Lock()
	sess := r.sessions["1-000017"]
	parityCount := len(sess.parity)
	r.mu.Unlock()
	if parityCount != 0 {
		t.Fatalf("short parity must be rejected")
	}
}

func TestProgressEventsTrackChunks(t *testing.T) {
	testlog.Start(t)
	var progress []Progress
	cb := Callbacks{
		OnText:     func(string) {},
		OnProgress: func(p Progress) { progress = append(progress, p) },
	}
	r := New(cb, shortTimeouts(), "FASTEST", zerolog.Nop())
	payload := strings.Repeat("p", 150)
	feed(r, buildSession("1-000018", []byte(payload), fec.None, false))

	if len(progress) == 0 {
		t.Fatalf("no progress events")
	}
	last := progress[len(progress)-1]
	if last.Current != 2 || last.Total != 2 {
		t.Fatalf("final progress: %+v", last)
	}
	for i, p := range progress {
		if p.SID != "1-000018" {
			t.Fatalf("progress %d wrong sid: %q", i, p.SID)
		}
	}
}

func TestSeqBeyondTotalRejected(t *testing.T) {
	r, _ := newTestReceiver(t, shortTimeouts())
	start := packet.Start{SID: "1-000019", Hash: codec.DigestB64([]byte("xx")), Total: 2}
	r.HandleFrame(start.Serialise())
	r.HandleFrame(packet.Data{SID: "1-000019", Seq: 3, Payload: codec.EncodeB64([]byte("x"))}.Serialise())

	r.mu.Lock()
	stored := len(r.sessions["1-000019"].chunks)
	r.mu.Unlock()
	if stored != 0 {
		t.Fatalf("out-of-window seq must be rejected, stored=%d", stored)
	}
}

func TestTimeoutScalesWithTotal(t *testing.T) {
	testlog.Start(t)
	r := New(Callbacks{}, DefaultTimeouts(), "NORMAL", zerolog.Nop())
	// NORMAL triples the per-packet budget: 30s + 10*5s*3 = 180s.
	if got := r.sessionTimeout(10); got != 180*time.Second {
		t.Fatalf("timeout: got %v", got)
	}
	// Small sessions clamp to the minimum.
	if got := r.sessionTimeout(0); got != 60*time.Second {
		t.Fatalf("min timeout: got %v", got)
	}

	fastest := New(Callbacks{}, DefaultTimeouts(), "FASTEST", zerolog.Nop())
	if got := fastest.sessionTimeout(10); got != 80*time.Second {
		t.Fatalf("fastest timeout: got %v", got)
	}
}

func TestEndFrameIsAdvisory(t *testing.T) {
	r, _ := newTestReceiver(t, shortTimeouts())
	start := packet.Start{SID: "1-000020", Hash: codec.DigestB64([]byte("xx")), Total: 2}
	r.HandleFrame(start.Serialise())
	r.HandleFrame(packet.End{SID: "1-000020"}.Serialise())
	if r.SessionCount() != 1 {
		t.Fatalf("END must not clear the session")
	}
}

func TestDuplicateSuppressionUsesPacketID(t *testing.T) {
	r, _ := newTestReceiver(t, shortTimeouts())
	start := packet.Start{SID: "1-000021", Hash: codec.DigestB64([]byte(strings.Repeat("k", 150))), Total: 2}
	r.HandleFrame(start.Serialise())

	payload := []byte(strings.Repeat("k", 150))
	split, _ := codec.Split(payload, codec.ChunkSize)
	for i := 0; i < 3; i++ {
		r.HandleFrame(packet.Data{SID: "1-000021", Seq: 1, Payload: codec.EncodeB64(split[0])}.Serialise())
	}
	r.mu.Lock()
	sess := r.sessions["1-000021"]
	seen := len(sess.seen)
	r.mu.Unlock()
	if seen != 1 {
		t.Fatalf("duplicate packet ids recorded: %d", seen)
	}
}
