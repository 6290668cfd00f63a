package fec

import (
	"bytes"
	"testing"
)

func fullChunk(b byte) []byte {
	out := make([]byte, ChunkSize)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestPrimaryParityIsXOR(t *testing.T) {
	chunks := map[int][]byte{
		1: fullChunk(0xA5),
		2: fullChunk(0x5A),
		3: fullChunk(0x0F),
	}
	g := Group{Start: 1, End: 3, Type: "0"}
	got := g.Parity(chunks)
	want := byte(0xA5 ^ 0x5A ^ 0x0F)
	for j, b := range got {
		if b != want {
			t.Fatalf("byte %d: got %#x want %#x", j, b, want)
		}
	}
}

func TestWeightedParityMixing(t *testing.T) {
	chunks := map[int][]byte{
		4: fullChunk(0x10),
		5: fullChunk(0x03),
		6: fullChunk(0x81),
	}
	secondary := Group{Start: 4, End: 6, Type: "1"}.Parity(chunks)
	wantSec := byte(0x10*1) ^ byte(0x03*2) ^ byte(0x81*3&0xFF)
	if secondary[0] != wantSec {
		t.Fatalf("secondary byte: got %#x want %#x", secondary[0], wantSec)
	}

	tertiary := Group{Start: 4, End: 6, Type: "2"}.Parity(chunks)
	wantTer := byte(0x10*1) ^ byte(0x03*4) ^ byte(0x81*9&0xFF)
	if tertiary[0] != wantTer {
		t.Fatalf("tertiary byte: got %#x want %#x", tertiary[0], wantTer)
	}
}

func TestParityPadsShortChunks(t *testing.T) {
	chunks := map[int][]byte{
		1: fullChunk(0x42),
		2: {0x42, 0x42},
	}
	got := Group{Start: 1, End: 2, Type: "0"}.Parity(chunks)
	if got[0] != 0 || got[1] != 0 {
		t.Fatalf("overlapping prefix should cancel: %#x %#x", got[0], got[1])
	}
	for j := 2; j < ChunkSize; j++ {
		if got[j] != 0x42 {
			t.Fatalf("padded tail byte %d: got %#x want 0x42", j, got[j])
		}
	}
}

func TestOverlapGroupUsesPrimaryAlgebra(t *testing.T) {
	chunks := map[int][]byte{
		2: fullChunk(0x11),
		3: fullChunk(0x22),
		4: fullChunk(0x44),
	}
	xor := Group{Start: 2, End: 4, Type: "O0"}.Parity(chunks)
	primary := Group{Start: 2, End: 4, Type: "0"}.Parity(chunks)
	if !bytes.Equal(xor, primary) {
		t.Fatalf("overlap parity must match primary XOR")
	}
}

func TestBuildParityCoversPlan(t *testing.T) {
	chunks := map[int][]byte{1: fullChunk(1), 2: fullChunk(2), 3: fullChunk(3), 4: fullChunk(4)}
	plan, parity := BuildParity(chunks, 4, StrongOverlapping3)
	if len(plan) != len(parity) {
		t.Fatalf("parity count %d != plan length %d", len(parity), len(plan))
	}
	for _, g := range plan {
		sym, ok := parity[g.ID()]
		if !ok {
			t.Fatalf("missing parity for %s", g.ID())
		}
		if len(sym) != ChunkSize {
			t.Fatalf("parity %s has width %d", g.ID(), len(sym))
		}
	}
}
