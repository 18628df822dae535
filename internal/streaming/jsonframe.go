package streaming

// jsonFrameSplitter reassembles complete JSON objects from an incrementally
// flushed stream. Array punctuation between objects ("[", ",", "]") and
// whitespace are discarded; nesting depth is tracked outside string literals.
type jsonFrameSplitter struct {
	buf     []byte
	depth   int
	inStr   bool
	escaped bool
}

// Feed consumes a chunk and returns any complete objects it closed.
func (s *jsonFrameSplitter) Feed(chunk []byte) [][]byte {
	var frames [][]byte

	for _, c := range chunk {
		if s.depth == 0 {
			// Between objects: skip array punctuation and whitespace.
			switch c {
			case '{':
				s.depth = 1
				s.buf = append(s.buf[:0], c)
			default:
			}
			continue
		}

		s.buf = append(s.buf, c)

		if s.inStr {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inStr = false
			}
			continue
		}

		switch c {
		case '"':
			s.inStr = true
		case '{':
			s.depth++
		case '}':
			s.depth--
			if s.depth == 0 {
				frame := make([]byte, len(s.buf))
				copy(frame, s.buf)
				frames = append(frames, frame)
				s.buf = s.buf[:0]
			}
		}
	}
	return frames
}
