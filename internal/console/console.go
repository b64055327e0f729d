package console

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"rover/internal/logging"
	"rover/pkg/types"

	serial "go.bug.st/serial"
)

// OpenPort opens the operator's serial line.
func OpenPort(config types.ConsoleConfig) (serial.Port, error) {
	port, err := serial.Open(config.PortName, &serial.Mode{BaudRate: config.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open console serial %s: %w", config.PortName, err)
	}
	return port, nil
}

// Console reads one command word per line and hands it to a Router.
type Console struct {
	r      io.Reader
	router *Router
	logger *logging.Logger
}

func New(r io.Reader, router *Router) *Console {
	return &Console{
		r:      r,
		router: router,
		logger: logging.GetLogger("console"),
	}
}

// Run routes lines until the reader reaches EOF or ctx ends. If the reader is
// an io.Closer it is closed on cancellation to unblock the pending read.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(c.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	c.logger.Info("Console started")
	for {
		select {
		case <-ctx.Done():
			if closer, ok := c.r.(io.Closer); ok {
				if err := closer.Close(); err != nil {
					c.logger.Warn("Failed to close console port", "error", err)
				}
			}
			c.logger.Info("Console stopped")
			return nil
		case line := <-lines:
			c.handle(line)
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("console read: %w", err)
			}
			c.logger.Info("Console input closed")
			return nil
		}
	}
}

func (c *Console) handle(line string) {
	w, ok, err := ParseWord(line)
	if err != nil {
		c.logger.Warn("Ignored console line", "line", line, "error", err)
		return
	}
	if !ok {
		return
	}

	if err := c.router.Route(w); err != nil {
		c.logger.Warn("Dropped console word", "word", w, "error", err)
		return
	}
	c.logger.Debug("Routed console word", "word", w)
}
