package diag

import (
	"encoding/json"
	"io"
	"os"
)

// Consumer receives diagnostics as they are produced. The core never
// interprets diagnostics after handing them off.
type Consumer interface {
	Consume(Diagnostic)
	// ErrorCount reports how many error-severity diagnostics were consumed.
	ErrorCount() int
}

// ConsoleConsumer renders diagnostics to a stream using the source-snippet
// formatter.
type ConsoleConsumer struct {
	formatter *Formatter
	errors    int
}

// NewConsoleConsumer creates a consumer writing formatted diagnostics to w.
// A nil w writes to stderr.
func NewConsoleConsumer(w io.Writer) *ConsoleConsumer {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleConsumer{formatter: NewFormatter(w)}
}

func (c *ConsoleConsumer) Consume(d Diagnostic) {
	if d.IsError() {
		c.errors++
	}
	c.formatter.Format(d)
}

func (c *ConsoleConsumer) ErrorCount() int { return c.errors }

// JSONConsumer writes one JSON object per diagnostic.
type JSONConsumer struct {
	enc    *json.Encoder
	errors int
}

func NewJSONConsumer(w io.Writer) *JSONConsumer {
	if w == nil {
		w = os.Stderr
	}
	return &JSONConsumer{enc: json.NewEncoder(w)}
}

func (c *JSONConsumer) Consume(d Diagnostic) {
	if d.IsError() {
		c.errors++
	}
	type jsonSpan struct {
		Filename string `json:"filename,omitempty"`
		Line     int    `json:"line"`
		Column   int    `json:"column"`
	}
	record := struct {
		Category Category          `json:"category"`
		Severity Severity          `json:"severity"`
		Code     Code              `json:"code"`
		Message  string            `json:"message"`
		Span     jsonSpan          `json:"span"`
		Payload  map[string]string `json:"payload,omitempty"`
	}{
		Category: d.Category,
		Severity: d.Severity,
		Code:     d.Code,
		Message:  d.Message,
		Span:     jsonSpan{Filename: d.Span.Filename, Line: d.Span.Line, Column: d.Span.Column},
		Payload:  d.Payload,
	}
	_ = c.enc.Encode(record)
}

func (c *JSONConsumer) ErrorCount() int { return c.errors }

// TrackingConsumer records diagnostics in memory. Used by tests and by
// callers that inspect diagnostics after the fact.
type TrackingConsumer struct {
	Diagnostics []Diagnostic
}

func NewTrackingConsumer() *TrackingConsumer { return &TrackingConsumer{} }

func (c *TrackingConsumer) Consume(d Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, d)
}

func (c *TrackingConsumer) ErrorCount() int {
	n := 0
	for _, d := range c.Diagnostics {
		if d.IsError() {
			n++
		}
	}
	return n
}
