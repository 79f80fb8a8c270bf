package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"cardchat/internal/domain"
)

var (
	dataPrefix   = []byte("data: ")
	doneSentinel = []byte("[DONE]")
)

// parseSSEStream reads server-sent events from body line by line and turns
// each data payload into a StreamDelta via parseLine. Empty lines, comments
// and unparseable payloads are skipped. The channel closes once the stream
// terminates (a Done delta, the "[DONE]" sentinel, an I/O error) or ctx is
// cancelled; body is closed either way.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)

	// emit reports false when ctx is cancelled before the delta is taken.
	emit := func(d domain.StreamDelta) bool {
		select {
		case ch <- d:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			data, ok := bytes.CutPrefix(scanner.Bytes(), dataPrefix)
			if !ok {
				// Not a data line: blank keep-alives, ": comment" lines,
				// event/id fields we do not use.
				continue
			}

			if bytes.Equal(data, doneSentinel) {
				emit(domain.StreamDelta{Done: true})
				return
			}

			delta, err := parseLine(data)
			if err != nil || delta == nil {
				continue
			}
			if !emit(*delta) || delta.Done {
				return
			}
		}

		// A scanner error means the body broke mid-stream; consumers still
		// need a terminal delta.
		if scanner.Err() != nil {
			emit(domain.StreamDelta{Done: true})
		}
	}()
	return ch
}
