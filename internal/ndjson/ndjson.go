// Package ndjson turns an asynchronous sequence of response envelopes into
// newline-delimited JSON lines for the chat UI.
package ndjson

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Event is one element of the upstream sequence. Err set means the producer
// failed; the payload is ignored in that case.
type Event struct {
	Payload any
	Err     error
}

// Format serializes each event to one JSON line, in strict input order,
// buffering no more than one event. A producer error or a marshal failure is
// logged and converted into a single terminal `{"error": "..."}` element
// (no trailing newline); nothing follows it and the error is not propagated.
func Format(events <-chan Event) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for ev := range events {
			if ev.Err != nil {
				out <- errorLine(ev.Err)
				return
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				out <- errorLine(err)
				return
			}
			out <- string(data) + "\n"
		}
	}()
	return out
}

func errorLine(err error) string {
	slog.Error("exception while generating response stream", "error", err)
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}

// WriteTo drains lines into w, flushing after each line when w implements
// http.Flusher so the UI sees envelopes as they are produced.
func WriteTo(w io.Writer, lines <-chan string) error {
	flusher, _ := w.(http.Flusher)
	for line := range lines {
		if _, err := io.WriteString(w, line); err != nil {
			// The client is gone; drain the rest so the Format goroutine is
			// not left blocked on its send forever.
			go func() {
				for range lines {
				}
			}()
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
