package fec

// pad right-extends chunk with zero bytes to the symbol width.
func pad(chunk []byte) []byte {
	if len(chunk) >= ChunkSize {
		return chunk[:ChunkSize]
	}
	out := make([]byte, ChunkSize)
	copy(out, chunk)
	return out
}

// stripPadding removes trailing zero bytes from a recovered symbol.
func stripPadding(chunk []byte) []byte {
	end := len(chunk)
	for end > 0 && chunk[end-1] == 0 {
		end--
	}
	return chunk[:end]
}

// weight is the 1-based positional weight of seq within its group.
func weight(seq, start int) int {
	return seq - start + 1
}

// Parity computes the group's parity symbol over the zero-padded chunks.
// Primary parity ("0" and every "O{i}") is the plain XOR. Secondary ("1") and
// tertiary ("2") XOR-accumulate each byte multiplied by the positional weight
// or its square, masked to a byte.
func (g Group) Parity(chunks map[int][]byte) []byte {
	out := make([]byte, ChunkSize)
	for seq := g.Start; seq <= g.End; seq++ {
		chunk, ok := chunks[seq]
		if !ok {
			continue
		}
		padded := pad(chunk)
		w := weight(seq, g.Start)
		switch g.Type {
		case "1":
			for j := 0; j < ChunkSize; j++ {
				out[j] ^= byte(int(padded[j]) * w)
			}
		case "2":
			for j := 0; j < ChunkSize; j++ {
				out[j] ^= byte(int(padded[j]) * w * w)
			}
		default:
			for j := 0; j < ChunkSize; j++ {
				out[j] ^= padded[j]
			}
		}
	}
	return out
}

// BuildParity computes every parity symbol in plan order, keyed by canonical
// identifier. Chunks are 1-based by sequence number.
func BuildParity(chunks map[int][]byte, total int, scheme Scheme) ([]Group, map[string][]byte) {
	plan := Plan(total, scheme)
	parity := make(map[string][]byte, len(plan))
	for _, g := range plan {
		parity[g.ID()] = g.Parity(chunks)
	}
	return plan, parity
}
