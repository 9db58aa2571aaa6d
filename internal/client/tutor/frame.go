package tutor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	model "github.com/zhouzirui/z-notes/internal/model/tutor"
)

const (
	frameDelimiter = "\n\n"
	dataPrefix     = "data: "
)

// FrameParser reassembles chat stream events from arbitrarily split chunks.
//
// Frames are separated by a blank line. Inside a frame every line starting
// with "data: " carries one JSON payload that is decoded on its own; any
// other line is ignored. A payload that fails to decode is dropped and the
// parser moves on to the next line.
//
// A FrameParser belongs to a single response body and is not safe for
// concurrent use.
type FrameParser struct {
	logger  *zap.Logger
	buf     []byte
	scanned int
	dropped int
}

// NewFrameParser returns an empty parser.
func NewFrameParser(logger *zap.Logger) *FrameParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameParser{logger: logger}
}

// Feed appends a chunk to the internal buffer.
func (p *FrameParser) Feed(chunk string) {
	p.buf = append(p.buf, chunk...)
}

// Drain returns every complete event currently buffered, in arrival order.
// Bytes belonging to an unterminated frame stay buffered for the next call.
func (p *FrameParser) Drain() []model.Event {
	var events []model.Event
	for {
		// A delimiter may straddle the previous scan boundary.
		from := p.scanned - 1
		if from < 0 {
			from = 0
		}
		idx := bytes.Index(p.buf[from:], []byte(frameDelimiter))
		if idx < 0 {
			p.scanned = len(p.buf)
			return events
		}
		end := from + idx
		events = p.decodeFrame(string(p.buf[:end]), events)

		rest := len(p.buf) - (end + len(frameDelimiter))
		copy(p.buf, p.buf[end+len(frameDelimiter):])
		p.buf = p.buf[:rest]
		p.scanned = 0
	}
}

// Pending reports how many buffered bytes have not yet formed a frame.
func (p *FrameParser) Pending() int {
	return len(p.buf)
}

// Dropped reports how many payload lines failed to decode so far.
func (p *FrameParser) Dropped() int {
	return p.dropped
}

// Finish discards an unterminated trailing frame once the body has ended.
func (p *FrameParser) Finish() {
	if len(p.buf) == 0 {
		return
	}
	p.logger.Debug("discarding unterminated stream frame", zap.Int("bytes", len(p.buf)))
	p.buf = p.buf[:0]
	p.scanned = 0
}

func (p *FrameParser) decodeFrame(frame string, events []model.Event) []model.Event {
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		event, err := decodePayload(line[len(dataPrefix):])
		if err != nil {
			p.dropped++
			p.logger.Warn("dropping malformed stream payload",
				zap.String("kind", "stream_corruption"),
				zap.String("payload", truncate(line, 200)),
				zap.Error(err),
			)
			continue
		}
		events = append(events, event)
	}
	return events
}

func decodePayload(raw string) (model.Event, error) {
	var event model.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return model.Event{}, &StreamCorruptionError{Payload: raw, Err: err}
	}
	return event, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:max], len(s))
}
