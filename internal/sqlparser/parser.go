package sqlparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/mfridman/interpolate"
)

// Section names a block of a migration file.
type Section string

const (
	SectionUp    Section = "up"
	SectionDown  Section = "down"
	SectionCheck Section = "check"
)

func (s Section) String() string {
	return string(s)
}

// Queries holds the text of each section of a migration file. A section that is absent or
// contains only whitespace is empty.
type Queries struct {
	Up    string
	Down  string
	Check string
}

var (
	// ErrDuplicateSection is returned when a section annotation appears twice.
	ErrDuplicateSection = errors.New("duplicate section annotation")

	// ErrUnexpectedStatement is returned when SQL appears before the first section annotation.
	ErrUnexpectedStatement = errors.New("statement before first section annotation")
)

type parserState int

const (
	start        parserState = iota // 0
	inUp                            // 1
	inDown                          // 2
	inCheck                         // 3
)

func stateFor(s Section) parserState {
	switch s {
	case SectionUp:
		return inUp
	case SectionDown:
		return inDown
	default:
		return inCheck
	}
}

type stateMachine struct {
	state   parserState
	verbose bool
}

func (s *stateMachine) get() parserState {
	return s.state
}

func (s *stateMachine) set(new parserState) {
	s.print("set %d => %d", s.state, new)
	s.state = new
}

const (
	grayColor  = "\033[90m"
	resetColor = "\033[00m"
)

func (s *stateMachine) print(msg string, args ...any) {
	msg = "StateMachine: " + msg
	if s.verbose {
		log.Printf(grayColor+msg+resetColor, args...)
	}
}

const scanBufSize = 4 * 1024 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, scanBufSize)
		return &buf
	},
}

// Option configures Parse.
type Option func(*parseConfig)

// WithEnvsub enables environment variable substitution from the first line. Files can still turn
// it off and on with the "-- +envsub off" and "-- +envsub on" annotations.
func WithEnvsub(enabled bool) Option {
	return func(c *parseConfig) { c.envsub = enabled }
}

// WithLookupEnv sets the function used to resolve ${VAR} references. The default is
// os.LookupEnv.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(c *parseConfig) { c.lookup = lookup }
}

// WithVerbose logs every line and every state change.
func WithVerbose(verbose bool) Option {
	return func(c *parseConfig) { c.verbose = verbose }
}

type parseConfig struct {
	envsub  bool
	verbose bool
	lookup  func(string) (string, bool)
}

type lookupEnv func(string) (string, bool)

var _ interpolate.Env = (lookupEnv)(nil)

func (f lookupEnv) Get(key string) (string, bool) { return f(key) }

// Parse splits a migration file into its up, down and check sections.
//
// A section starts at an annotation line "-- up:", "-- down:" or "-- check:" (case-insensitive)
// and runs until the next annotation or the end of the file. Each section may appear at most
// once. Only blank lines and comments may precede the first annotation.
//
// Section text is returned as written, minus leading and trailing whitespace. No attempt is made
// to split or validate statements.
func Parse(r io.Reader, opts ...Option) (*Queries, error) {
	cfg := parseConfig{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&cfg)
	}

	scanBufPtr := bufferPool.Get().(*[]byte)
	scanBuf := *scanBufPtr
	defer bufferPool.Put(scanBufPtr)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(scanBuf, scanBufSize)

	sm := &stateMachine{state: start, verbose: cfg.verbose}
	envsub := cfg.envsub
	env := lookupEnv(cfg.lookup)

	var (
		bufs   [4]strings.Builder
		stmts  [4]bool
		seen   = make(map[Section]bool)
		lineNo int
	)
	for scanner.Scan() {
		line := scanner.Text()
		lineNo++
		if cfg.verbose {
			log.Println(line)
		}
		if section, ok := parseAnnotation(line); ok {
			if seen[section] {
				return nil, fmt.Errorf("line %d: %w: %q", lineNo, ErrDuplicateSection, "-- "+section.String()+":")
			}
			seen[section] = true
			sm.set(stateFor(section))
			continue
		}
		if on, ok := parseEnvsub(line); ok {
			sm.print("envsub %t", on)
			envsub = on
			continue
		}
		if sm.get() == start {
			if isComment(line) {
				sm.print("ignore comment")
				continue
			}
			return nil, fmt.Errorf("line %d: %w: %q", lineNo, ErrUnexpectedStatement, strings.TrimSpace(line))
		}
		if envsub {
			expanded, err := interpolate.Interpolate(env, line)
			if err != nil {
				return nil, fmt.Errorf("line %d: variable substitution failed: %w", lineNo, err)
			}
			line = expanded
		}
		if !isComment(line) {
			stmts[sm.get()] = true
		}
		buf := &bufs[sm.get()]
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan migration: %w", err)
	}
	// A section holding only comments and blank lines has nothing to run.
	section := func(st parserState) string {
		if !stmts[st] {
			return ""
		}
		return strings.TrimSpace(bufs[st].String())
	}
	return &Queries{
		Up:    section(inUp),
		Down:  section(inDown),
		Check: section(inCheck),
	}, nil
}

// isComment reports whether line is blank or a "--" line comment.
func isComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "--")
}

func parseAnnotation(line string) (Section, bool) {
	cmd, ok := comment(line)
	if !ok {
		return "", false
	}
	switch strings.ToLower(cmd) {
	case "up:":
		return SectionUp, true
	case "down:":
		return SectionDown, true
	case "check:":
		return SectionCheck, true
	}
	return "", false
}

func parseEnvsub(line string) (on bool, ok bool) {
	cmd, ok := comment(line)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.Join(strings.Fields(cmd), " ")) {
	case "+envsub on":
		return true, true
	case "+envsub off":
		return false, true
	}
	return false, false
}

// comment returns the trimmed text of a line comment.
func comment(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "--") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "--")), true
}
