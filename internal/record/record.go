// Package record defines the log record model and the pipe-delimited line parser.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Categories the router knows about. Any other category string is valid in
// a record but has no route unless configured.
const (
	Debug    = "DEBUG"
	Info     = "INFO"
	Warning  = "WARNING"
	Error    = "ERROR"
	Critical = "CRITICAL"

	// Status is the reserved category for messages about logrelay itself.
	Status = "status"
)

// Severities lists the log severities in increasing order.
var Severities = []string{Debug, Info, Warning, Error, Critical}

// ErrMalformed is returned for lines that do not follow
// "timestamp|module|severity|message".
var ErrMalformed = errors.New("malformed record")

// Record is one parsed log line.
type Record struct {
	Timestamp time.Time
	Stamp     string // timestamp field as written, surrounding whitespace removed
	Module    string
	Category  string
	Message   string
}

// String renders the record as "<timestamp>:<category>:<message>".
func (r Record) String() string {
	return r.Stamp + ":" + r.Category + ":" + r.Message
}

// Parser turns raw lines into records.
type Parser struct {
	layout string
	loc    *time.Location
}

// NewParser returns a parser for timestamps written with the given Go
// layout, interpreted in loc (time.Local when nil).
func NewParser(layout string, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{layout: layout, loc: loc}
}

var categoryCleaner = strings.NewReplacer("\t", "", " ", "")

// Parse splits line into its four fields. The message keeps any further
// '|' characters. Severity has every tab and space removed.
func (p *Parser) Parse(line string) (Record, error) {
	line = strings.TrimSuffix(line, "\r")

	fields := strings.SplitN(line, "|", 4)
	if len(fields) < 4 {
		return Record{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformed, len(fields))
	}

	stamp := strings.TrimSpace(fields[0])
	ts, err := time.ParseInLocation(p.layout, stamp, p.loc)
	if err != nil {
		return Record{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformed, stamp, err)
	}

	return Record{
		Timestamp: ts,
		Stamp:     stamp,
		Module:    strings.TrimSpace(fields[1]),
		Category:  categoryCleaner.Replace(fields[2]),
		Message:   fields[3],
	}, nil
}
