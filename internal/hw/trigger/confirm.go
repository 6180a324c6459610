package trigger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/cjeanneret/spinrec/internal/debug"
)

// Confirmer blocks until an operator allows the program to go on.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) error
}

// Console asks for Enter on a terminal. Prompts from several camera workers
// are serialized. A closed input counts as confirmation.
type Console struct {
	mu  sync.Mutex
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan struct{}
}

// NewConsole reads confirmations from in and writes prompts to out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

func (c *Console) start() {
	c.lines = make(chan struct{})
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			c.lines <- struct{}{}
		}
		close(c.lines)
	}()
}

func (c *Console) Confirm(ctx context.Context, prompt string) error {
	c.once.Do(c.start)
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, prompt)
	select {
	case _, ok := <-c.lines:
		if !ok {
			debug.Verbose("Console: input closed, continuing")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Immediate confirms right away.
type Immediate struct{}

func (Immediate) Confirm(ctx context.Context, prompt string) error {
	debug.Verbose("%s (skipped)", prompt)
	return ctx.Err()
}

// Gate holds confirmations until Fire is called, e.g. from the web console.
type Gate struct {
	mu      sync.Mutex
	release chan struct{}
	waiting int
}

func NewGate() *Gate {
	return &Gate{release: make(chan struct{})}
}

func (g *Gate) Confirm(ctx context.Context, prompt string) error {
	g.mu.Lock()
	ch := g.release
	g.waiting++
	g.mu.Unlock()

	debug.Info("%s (waiting for trigger)", prompt)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		if g.release == ch {
			g.waiting--
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}

// Fire releases every pending confirmation and returns how many there were.
func (g *Gate) Fire() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.waiting
	close(g.release)
	g.release = make(chan struct{})
	g.waiting = 0
	return n
}

// Waiting returns the number of pending confirmations.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}
