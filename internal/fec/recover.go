package fec

import "math"

// Recover runs group recovery passes over the plan until no further chunk can
// be reconstructed. Recovered chunks are written into chunks with trailing
// padding stripped. Returns the number of chunks recovered.
//
// Passes repeat to a fixpoint: a chunk recovered in one group may be the last
// missing member of an adjacent overlapping group.
func Recover(chunks map[int][]byte, parity map[string][]byte, total int, scheme Scheme) int {
	plan := Plan(total, scheme)
	if len(plan) == 0 {
		return 0
	}

	ranges := make([][2]int, 0, len(plan))
	seen := make(map[[2]int]struct{}, len(plan))
	for _, g := range plan {
		key := [2]int{g.Start, g.End}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		ranges = append(ranges, key)
	}

	recovered := 0
	for {
		progress := 0
		for _, r := range ranges {
			progress += recoverRange(chunks, parity, r[0], r[1])
		}
		if progress == 0 {
			return recovered
		}
		recovered += progress
	}
}

// AggressiveRecover walks every parity symbol held, ignoring the declared
// plan, and applies the primary XOR recovery to any group with exactly one
// missing chunk. This picks up parity that arrived before the scheme was
// understood. Returns the number of chunks recovered.
func AggressiveRecover(chunks map[int][]byte, parity map[string][]byte) int {
	store := func(seq int, sym []byte) { chunks[seq] = stripPadding(sym) }
	recovered := 0
	for {
		progress := 0
		for id, sym := range parity {
			g, ok := ParseID(id)
			if !ok {
				continue
			}
			if g.Type != "0" && !g.Overlapping() {
				continue
			}
			missing := missingIn(chunks, g.Start, g.End)
			if len(missing) != 1 {
				continue
			}
			if xorRecover(chunks, sym, g.Start, g.End, missing[0], store) {
				progress++
			}
		}
		if progress == 0 {
			return recovered
		}
		recovered += progress
	}
}

// recoverRange attempts recovery for one [start,end] range using whichever
// parity symbols are held for it. Returns the number of chunks recovered.
func recoverRange(chunks map[int][]byte, parity map[string][]byte, start, end int) int {
	missing := missingIn(chunks, start, end)
	if len(missing) == 0 {
		return 0
	}

	primary := primaryParity(parity, start, end)
	secondary := parity[Group{Start: start, End: end, Type: "1"}.ID()]
	tertiary := parity[Group{Start: start, End: end, Type: "2"}.ID()]

	switch len(missing) {
	case 1:
		if primary == nil {
			return 0
		}
		store := func(seq int, sym []byte) { chunks[seq] = stripPadding(sym) }
		if xorRecover(chunks, primary, start, end, missing[0], store) {
			return 1
		}
		return 0
	case 2:
		if primary == nil || secondary == nil {
			return 0
		}
		if solveTwo(chunks, primary, secondary, start, end, missing) {
			return 2
		}
		return 0
	case 3:
		if primary == nil || secondary == nil || tertiary == nil {
			return 0
		}
		if solveThree(chunks, primary, secondary, tertiary, start, end, missing) {
			return 3
		}
		return 0
	}
	return 0
}

// primaryParity finds the primary symbol for a range under either its
// ordinary "0" identifier or an overlap "O{i}" identifier.
func primaryParity(parity map[string][]byte, start, end int) []byte {
	if p, ok := parity[Group{Start: start, End: end, Type: "0"}.ID()]; ok {
		return p
	}
	for id, p := range parity {
		g, ok := ParseID(id)
		if !ok {
			continue
		}
		if g.Start == start && g.End == end && g.Overlapping() {
			return p
		}
	}
	return nil
}

func missingIn(chunks map[int][]byte, start, end int) []int {
	var missing []int
	for seq := start; seq <= end; seq++ {
		if _, ok := chunks[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	return missing
}

// xorRecover reconstructs the single missing chunk of a group as the XOR of
// the primary parity with every present padded chunk.
func xorRecover(chunks map[int][]byte, primary []byte, start, end, missingSeq int, store func(int, []byte)) bool {
	if len(primary) != ChunkSize {
		return false
	}
	sym := make([]byte, ChunkSize)
	copy(sym, primary)
	for seq := start; seq <= end; seq++ {
		if seq == missingSeq {
			continue
		}
		chunk, ok := chunks[seq]
		if !ok {
			return false
		}
		padded := pad(chunk)
		for j := 0; j < ChunkSize; j++ {
			sym[j] ^= padded[j]
		}
	}
	store(missingSeq, sym)
	return true
}

// residual folds the present chunks out of a parity symbol, leaving only the
// contribution of the missing chunks. power selects the weight exponent used
// when the symbol was generated.
func residual(chunks map[int][]byte, parity []byte, start, end, power int, missing []int) []byte {
	out := make([]byte, ChunkSize)
	copy(out, parity)
	skip := make(map[int]struct{}, len(missing))
	for _, seq := range missing {
		skip[seq] = struct{}{}
	}
	for seq := start; seq <= end; seq++ {
		if _, ok := skip[seq]; ok {
			continue
		}
		padded := pad(chunks[seq])
		w := weight(seq, start)
		switch power {
		case 1:
			for j := 0; j < ChunkSize; j++ {
				out[j] ^= byte(int(padded[j]) * w)
			}
		case 2:
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

// solveTwo reconstructs two missing chunks from the primary and secondary
// residuals. The byte-wise system
//
//	x1 +    x2    = s0
//	w1*x1 + w2*x2 = s1
//
// is evaluated in real arithmetic and rounded back to bytes; the mixing is
// the wire contract, not a field operation. Solved bytes are assigned to the
// missing sequence numbers in ascending order.
func solveTwo(chunks map[int][]byte, primary, secondary []byte, start, end int, missing []int) bool {
	if len(primary) != ChunkSize || len(secondary) != ChunkSize {
		return false
	}
	w1 := float64(weight(missing[0], start))
	w2 := float64(weight(missing[1], start))
	if w1 == w2 {
		return false
	}
	s0 := residual(chunks, primary, start, end, 0, missing)
	s1 := residual(chunks, secondary, start, end, 1, missing)

	a := make([]byte, ChunkSize)
	b := make([]byte, ChunkSize)
	for j := 0; j < ChunkSize; j++ {
		r0 := float64(s0[j])
		r1 := float64(s1[j])
		x2 := (r1 - w1*r0) / (w2 - w1)
		x1 := r0 - x2
		a[j] = roundByte(x1)
		b[j] = roundByte(x2)
	}
	chunks[missing[0]] = stripPadding(a)
	chunks[missing[1]] = stripPadding(b)
	return true
}

// solveThree reconstructs three missing chunks through a 3x3 real-valued
// Gaussian elimination over the primary/secondary/tertiary residuals. On a
// singular matrix each byte falls back to the raw residual values.
func solveThree(chunks map[int][]byte, primary, secondary, tertiary []byte, start, end int, missing []int) bool {
	if len(primary) != ChunkSize || len(secondary) != ChunkSize || len(tertiary) != ChunkSize {
		return false
	}
	var w [3]float64
	for i, seq := range missing {
		w[i] = float64(weight(seq, start))
	}
	s0 := residual(chunks, primary, start, end, 0, missing)
	s1 := residual(chunks, secondary, start, end, 1, missing)
	s2 := residual(chunks, tertiary, start, end, 2, missing)

	out := [3][]byte{
		make([]byte, ChunkSize),
		make([]byte, ChunkSize),
		make([]byte, ChunkSize),
	}
	for j := 0; j < ChunkSize; j++ {
		m := [3][4]float64{
			{1, 1, 1, float64(s0[j])},
			{w[0], w[1], w[2], float64(s1[j])},
			{w[0] * w[0], w[1] * w[1], w[2] * w[2], float64(s2[j])},
		}
		x, ok := gauss3(m)
		if !ok {
			out[0][j] = s0[j]
			out[1][j] = s1[j]
			out[2][j] = s2[j]
			continue
		}
		out[0][j] = roundByte(x[0])
		out[1][j] = roundByte(x[1])
		out[2][j] = roundByte(x[2])
	}
	for i, seq := range missing {
		chunks[seq] = stripPadding(out[i])
	}
	return true
}

func gauss3(m [3][4]float64) ([3]float64, bool) {
	const eps = 1e-9
	for col := 0; col < 3; col++ {
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < eps {
			return [3]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		for row := col + 1; row < 3; row++ {
			f := m[row][col] / m[col][col]
			for k := col; k < 4; k++ {
				m[row][k] -= f * m[col][k]
			}
		}
	}
	var x [3]float64
	for row := 2; row >= 0; row-- {
		sum := m[row][3]
		for k := row + 1; k < 3; k++ {
			sum -= m[row][k] * x[k]
		}
		x[row] = sum / m[row][row]
	}
	return x, true
}

func roundByte(v float64) byte {
	return byte(int(math.Round(v)) & 0xFF)
}
