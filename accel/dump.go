package accel

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Sink is the structured-printer collaborator a Dump walk writes through.
// Scopes (dict/list) must be closed in LIFO order; WithDict/WithList
// guarantee that with scoped acquisition.
type Sink interface {
	OpenDict(label string)
	CloseDict()
	OpenList(label string)
	CloseList()
	PrintHex(key string, v uint64)
	PrintNumber(key string, v uint64)
	PrintString(key, v string)
	StartLine() io.Writer
}

// WithDict opens a dict scope, runs fn, and closes the scope on every exit
// path including a panic unwinding through fn.
func WithDict(s Sink, label string, fn func()) {
	s.OpenDict(label)
	defer s.CloseDict()
	fn()
}

// WithList is WithDict for list scopes.
func WithList(s Sink, label string, fn func()) {
	s.OpenList(label)
	defer s.CloseList()
	fn()
}

// TreeSink renders a Sink's scoped structure as indented text. Labels and
// values are colorized separately, the way a debugger dump usually
// distinguishes structure from data; PrintNumber renders through
// golang.org/x/text/number so large counters get locale-aware grouping.
type TreeSink struct {
	w       io.Writer
	depth   int
	printer *message.Printer
	label   *color.Color
	value   *color.Color
}

// NewTreeSink returns a Sink that writes indented, colorized text to w.
func NewTreeSink(w io.Writer) *TreeSink {
	return &TreeSink{
		w:       w,
		printer: message.NewPrinter(language.English),
		label:   color.New(color.FgCyan),
		value:   color.New(color.FgGreen),
	}
}

func (s *TreeSink) indent() string { return strings.Repeat("  ", s.depth) }

func (s *TreeSink) OpenDict(label string) {
	fmt.Fprintf(s.w, "%s%s {\n", s.indent(), s.label.Sprint(label))
	s.depth++
}

func (s *TreeSink) CloseDict() {
	s.depth--
	fmt.Fprintf(s.w, "%s}\n", s.indent())
}

func (s *TreeSink) OpenList(label string) {
	fmt.Fprintf(s.w, "%s%s [\n", s.indent(), s.label.Sprint(label))
	s.depth++
}

func (s *TreeSink) CloseList() {
	s.depth--
	fmt.Fprintf(s.w, "%s]\n", s.indent())
}

func (s *TreeSink) PrintHex(key string, v uint64) {
	fmt.Fprintf(s.w, "%s%s = %s\n", s.indent(), s.label.Sprint(key), s.value.Sprintf("0x%x", v))
}

func (s *TreeSink) PrintNumber(key string, v uint64) {
	formatted := s.printer.Sprintf("%v", number.Decimal(v))
	fmt.Fprintf(s.w, "%s%s = %s\n", s.indent(), s.label.Sprint(key), s.value.Sprint(formatted))
}

func (s *TreeSink) PrintString(key, v string) {
	fmt.Fprintf(s.w, "%s%s = %s\n", s.indent(), s.label.Sprint(key), s.value.Sprintf("%q", v))
}

func (s *TreeSink) StartLine() io.Writer {
	fmt.Fprint(s.w, s.indent())
	return s.w
}
