package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
)

// ParseLine decodes one line of connector stdout into a Message. An empty
// (whitespace-only) line is not an error — callers should skip it before
// calling ParseLine, which is what ParseStream does.
func ParseLine(line []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ParseStream reads newline-delimited messages from r, sending each
// successfully parsed Message on the returned channel in the order it was
// read. A malformed line is logged at warn level and skipped — it never
// aborts the stream. The channel is unbuffered so a slow downstream
// consumer applies backpressure all the way to the line read, per the
// executor's cooperative-suspension model. The channel closes when r is
// exhausted, the context is cancelled, or a read error occurs; a non-nil
// read error (not a parse error) is sent to errc before the channels close.
func ParseStream(ctx context.Context, r io.Reader, logger zerolog.Logger) (<-chan Message, <-chan error) {
	messages := make(chan Message)
	errc := make(chan error, 1)

	go func() {
		defer close(messages)
		defer close(errc)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			msg, err := ParseLine(line)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("line", truncate(line, 500)).
					Msg("skipping malformed connector message")
				continue
			}

			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case errc <- err:
			default:
			}
		}
	}()

	return messages, errc
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// LastState scans a slice of messages and returns the last STATE message
// observed, if any. The last STATE message before EOF is authoritative for
// the run per the protocol's checkpoint ordering rule.
func LastState(messages []Message) *StateMessage {
	var last *StateMessage
	for i := range messages {
		if messages[i].Type == MessageTypeState && messages[i].State != nil {
			last = messages[i].State
		}
	}
	return last
}

// Records filters a slice of messages down to their RECORD payloads, in
// order.
func Records(messages []Message) []RecordMessage {
	var out []RecordMessage
	for i := range messages {
		if messages[i].Type == MessageTypeRecord && messages[i].Record != nil {
			out = append(out, *messages[i].Record)
		}
	}
	return out
}

// Errors filters a slice of messages down to TRACE ERROR payloads.
func Errors(messages []Message) []ErrorTrace {
	var out []ErrorTrace
	for i := range messages {
		if messages[i].Type == MessageTypeTrace && messages[i].Trace != nil && messages[i].Trace.Error != nil {
			out = append(out, *messages[i].Trace.Error)
		}
	}
	return out
}
