package protocol

import "bytes"

// FrameScanner accumulates raw socket reads and splits them into complete
// start..end spans. Frames may arrive split across reads or several per
// read; garbage before the next start marker is discarded.
type FrameScanner struct {
	markers  Markers
	buf      []byte
	maxFrame int
}

// NewFrameScanner creates a scanner. maxFrame bounds the buffered bytes for
// a single frame; an unterminated span longer than that is dropped so a
// misbehaving peer cannot grow the buffer without bound.
func NewFrameScanner(m Markers, maxFrame int) *FrameScanner {
	if maxFrame <= 0 {
		maxFrame = 4096
	}
	return &FrameScanner{markers: m, maxFrame: maxFrame}
}

// Append adds raw bytes read from the socket
func (s *FrameScanner) Append(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next returns the next complete frame span including its markers, or
// false when no complete frame is buffered yet.
func (s *FrameScanner) Next() ([]byte, bool) {
	for {
		start := bytes.IndexByte(s.buf, s.markers.Start)
		if start < 0 {
			// 没有起始符，全部丢弃
			s.buf = s.buf[:0]
			return nil, false
		}
		if start > 0 {
			s.buf = s.buf[start:]
		}

		end := bytes.IndexByte(s.buf[1:], s.markers.End)
		if end < 0 {
			if len(s.buf) > s.maxFrame {
				// 超长未闭合帧，跳过这个起始符重新同步
				s.buf = s.buf[1:]
				continue
			}
			return nil, false
		}

		span := make([]byte, end+2)
		copy(span, s.buf[:end+2])
		s.buf = s.buf[end+2:]
		return span, true
	}
}

// Pending returns the number of buffered bytes awaiting a complete frame
func (s *FrameScanner) Pending() int {
	return len(s.buf)
}
