package status

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"

	"github.com/chr1sbest/stepper/internal/sequence"
)

// ANSI escape codes
const (
	clearLine  = "\033[2K"
	moveUp     = "\033[A"
	moveToCol0 = "\r"
)

var icons = map[sequence.Status]string{
	sequence.StatusWaiting: "○",
	sequence.StatusLoading: "◐",
	sequence.StatusSuccess: "✓",
	sequence.StatusError:   "✗",
}

type styles struct {
	waiting lipgloss.Style
	loading lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		waiting: r.NewStyle().Foreground(lipgloss.Color("243")),
		loading: r.NewStyle().Foreground(lipgloss.Color("214")),
		success: r.NewStyle().Foreground(lipgloss.Color("76")),
		failure: r.NewStyle().Foreground(lipgloss.Color("204")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("243")),
		bold:    r.NewStyle().Bold(true),
	}
}

func (s styles) forStatus(st sequence.Status) lipgloss.Style {
	switch st {
	case sequence.StatusLoading:
		return s.loading
	case sequence.StatusSuccess:
		return s.success
	case sequence.StatusError:
		return s.failure
	default:
		return s.waiting
	}
}

// Writer renders sequence progress to a terminal.
//
// On a TTY it redraws one line per step in place. In plain mode it prints a
// line for every change instead, which suits logs and CI output.
type Writer struct {
	w            io.Writer
	mu           sync.Mutex
	plain        bool
	title        string
	styles       styles
	width        int
	keyWidth     int
	linesWritten int
	frame        sequence.StepMap
	startedAt    time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithPlain forces plain (non-redrawing) output.
func WithPlain(plain bool) Option {
	return func(s *Writer) {
		s.plain = plain
	}
}

// WithTitle sets the header printed when a run starts.
func WithTitle(title string) Option {
	return func(s *Writer) {
		s.title = title
	}
}

// WithWidth sets the terminal width used to cut redrawn lines. Zero leaves
// lines uncut.
func WithWidth(width int) Option {
	return func(s *Writer) {
		s.width = width
	}
}

// New creates a status writer that outputs to stdout.
func New(opts ...Option) *Writer {
	return NewWithWriter(os.Stdout, opts...)
}

// NewWithWriter creates a status writer with a custom output. Output that is
// not a terminal defaults to plain mode.
func NewWithWriter(w io.Writer, opts ...Option) *Writer {
	s := &Writer{
		w:      w,
		plain:  !IsTerminal(w),
		width:  terminalWidth(w),
		styles: newStyles(lipgloss.NewRenderer(w)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsTerminal reports whether w is a terminal. STEPPER_FORCE_TTY overrides
// detection.
func IsTerminal(w io.Writer) bool {
	if force, err := strconv.ParseBool(os.Getenv("STEPPER_FORCE_TTY")); err == nil {
		return force
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(f.Fd())
	if err != nil {
		return 0
	}
	return width
}

// Plain reports whether the writer is in plain mode.
func (s *Writer) Plain() bool {
	return s.plain
}

// Handle renders one sequence event. It satisfies sequence.Handler.
func (s *Writer) Handle(ev sequence.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case sequence.EventSequenceStarted:
		s.startedAt = ev.Time
		s.keyWidth = keyWidth(ev.Snapshot)
		s.linesWritten = 0
		if s.title != "" {
			fmt.Fprintln(s.w, s.styles.bold.Render(s.title))
		}
		if !s.plain {
			s.redraw(ev.Snapshot)
		}

	case sequence.EventStepTransition:
		if s.plain {
			fmt.Fprintln(s.w, s.stepLine(ev.Step))
			return
		}
		s.redraw(ev.Snapshot)

	case sequence.EventStepProgress:
		if s.plain {
			fmt.Fprintln(s.w, s.stepLine(ev.Step))
			return
		}
		s.redraw(ev.Snapshot)

	case sequence.EventSequenceFinished:
		if !s.plain {
			s.redraw(ev.Snapshot)
			// Keep the final frame on screen.
			s.linesWritten = 0
			s.frame = nil
		}
		fmt.Fprintln(s.w, s.summary(ev))
	}
}

// clear erases previously written status lines. Callers hold mu.
func (s *Writer) clear() {
	for i := 0; i < s.linesWritten; i++ {
		fmt.Fprint(s.w, moveUp+clearLine)
	}
	fmt.Fprint(s.w, moveToCol0)
	s.linesWritten = 0
}

func (s *Writer) redraw(snap sequence.StepMap) {
	s.clear()
	for _, step := range snap {
		fmt.Fprintln(s.w, s.fit(s.stepLine(step)))
	}
	s.linesWritten = len(snap)
	s.frame = snap
}

// fit cuts line to the terminal width. A wrapped line would take two rows
// and throw off the next clear.
func (s *Writer) fit(line string) string {
	if s.width <= 0 || lipgloss.Width(line) < s.width {
		return line
	}
	return ansi.Truncate(line, s.width-1, "…")
}

// Above returns a writer for output that shares the terminal with s, such as
// logs on stderr. In interactive mode each write lands above the live frame,
// which is redrawn below it.
func (s *Writer) Above(out io.Writer) io.Writer {
	return &aboveWriter{status: s, out: out}
}

type aboveWriter struct {
	status *Writer
	out    io.Writer
}

func (a *aboveWriter) Write(p []byte) (int, error) {
	s := a.status
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.plain || s.linesWritten == 0 {
		return a.out.Write(p)
	}
	s.clear()
	n, err := a.out.Write(p)
	s.redraw(s.frame)
	return n, err
}

func (s *Writer) stepLine(step sequence.Step) string {
	style := s.styles.forStatus(step.Status)
	key := step.Key
	if pad := s.keyWidth - len(key); pad > 0 {
		key += strings.Repeat(" ", pad)
	}

	line := fmt.Sprintf("%s %s %s", style.Render(icons[step.Status]), key, style.Render(string(step.Status)))
	if detail := stepDetail(step); detail != "" {
		line += "  " + s.styles.muted.Render(detail)
	}
	return line
}

func stepDetail(step sequence.Step) string {
	switch step.Status {
	case sequence.StatusSuccess:
		return step.Duration().Round(time.Millisecond).String()
	case sequence.StatusError:
		if step.Err != nil {
			return firstLine(step.Err.Error())
		}
		return ""
	default:
		return step.HelperText
	}
}

func (s *Writer) summary(ev sequence.Event) string {
	total := len(ev.Snapshot)
	done := ev.Snapshot.Succeeded()
	elapsed := ""
	if !s.startedAt.IsZero() && !ev.Time.IsZero() {
		elapsed = " in " + ev.Time.Sub(s.startedAt).Round(time.Millisecond).String()
	}

	if ev.Err == nil {
		return s.styles.success.Render(fmt.Sprintf("✓ %d/%d steps completed%s", done, total, elapsed))
	}
	if failed, ok := ev.Snapshot.Failed(); ok {
		return s.styles.failure.Render(fmt.Sprintf("✗ %s failed after %d/%d steps%s: %s",
			failed.Key, done, total, elapsed, firstLine(ev.Err.Error())))
	}
	return s.styles.failure.Render(fmt.Sprintf("✗ stopped after %d/%d steps%s: %s", done, total, elapsed, firstLine(ev.Err.Error())))
}

func keyWidth(snap sequence.StepMap) int {
	w := 0
	for _, step := range snap {
		if len(step.Key) > w {
			w = len(step.Key)
		}
	}
	return w
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
