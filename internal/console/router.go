// Package console accepts command words from an operator over a serial line
// and routes them to the queue that owns each class.
package console

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"rover/internal/core"
)

// ParseWord reads one console line. Blank lines and '#' comments yield
// ok == false. Words are hex with a 0x prefix or decimal.
func ParseWord(line string) (w core.Word, ok bool, err error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false, nil
	}

	var v uint64
	if rest, isHex := strings.CutPrefix(strings.ToLower(line), "0x"); isHex {
		v, err = strconv.ParseUint(rest, 16, 32)
	} else {
		v, err = strconv.ParseUint(line, 10, 32)
	}
	if err != nil {
		return 0, false, fmt.Errorf("invalid command word %q: %w", line, err)
	}
	return core.Word(v), true, nil
}

// RouterStats counts routed and dropped words.
type RouterStats struct {
	Routed  map[core.Class]uint64
	Dropped uint64
}

// Router sends drive words to the controller queue, line-control words to the
// line tracker and horn words to the horn.
type Router struct {
	commands *core.CommandQueue
	lines    *core.CommandQueue
	horn     *core.CommandQueue

	mu      sync.Mutex
	routed  map[core.Class]uint64
	dropped uint64
}

// NewRouter builds a router. A nil queue drops its classes.
func NewRouter(commands, lines, horn *core.CommandQueue) *Router {
	return &Router{
		commands: commands,
		lines:    lines,
		horn:     horn,
		routed:   make(map[core.Class]uint64),
	}
}

// Route enqueues w on the queue for its class. Unroutable words are counted
// and reported with core.ErrUnknownClass.
func (r *Router) Route(w core.Word) error {
	class := w.Class()

	var q *core.CommandQueue
	switch {
	case class.IsDrive():
		q = r.commands
	case class == core.ClassLineControl:
		q = r.lines
	case class.IsHorn():
		q = r.horn
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if q == nil {
		r.dropped++
		return fmt.Errorf("%w: %s", core.ErrUnknownClass, w)
	}
	q.Enqueue(w)
	r.routed[class]++
	return nil
}

func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	routed := make(map[core.Class]uint64, len(r.routed))
	for k, v := range r.routed {
		routed[k] = v
	}
	return RouterStats{Routed: routed, Dropped: r.dropped}
}
