package tutor

import (
	"context"
	"errors"
	"fmt"
	"io"

	model "github.com/zhouzirui/z-notes/internal/model/tutor"
)

const readChunkSize = 4 * 1024

// Decoder pulls events out of a streamed response body.
//
//	for {
//	    event, err := decoder.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
type Decoder struct {
	body   io.Reader
	parser *FrameParser
	chunk  []byte
	queue  []model.Event
	err    error
}

// NewDecoder wraps body. The parser must be fresh for each body.
func NewDecoder(body io.Reader, parser *FrameParser) *Decoder {
	if parser == nil {
		parser = NewFrameParser(nil)
	}
	return &Decoder{
		body:   body,
		parser: parser,
		chunk:  make([]byte, readChunkSize),
	}
}

// Next returns the next event. It returns io.EOF once the body is exhausted
// and every complete frame has been delivered, whether or not a final event
// was seen.
func (d *Decoder) Next(ctx context.Context) (model.Event, error) {
	for {
		if len(d.queue) > 0 {
			event := d.queue[0]
			d.queue = d.queue[1:]
			return event, nil
		}
		if d.err != nil {
			return model.Event{}, d.err
		}
		if err := ctx.Err(); err != nil {
			return model.Event{}, err
		}

		n, err := d.body.Read(d.chunk)
		if n > 0 {
			d.parser.Feed(string(d.chunk[:n]))
			d.queue = append(d.queue, d.parser.Drain()...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.parser.Finish()
				d.err = io.EOF
			} else if ctxErr := ctx.Err(); ctxErr != nil {
				d.err = ctxErr
			} else {
				d.err = fmt.Errorf("read stream: %w", err)
			}
		}
	}
}

// Dropped reports how many malformed payload lines were skipped.
func (d *Decoder) Dropped() int {
	return d.parser.Dropped()
}
