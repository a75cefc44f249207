// Package console reads line commands and submits them to the pipeline loop.
// It never touches engine state directly.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/crimson-sun/tipwatch/internal/engine"
	"github.com/crimson-sun/tipwatch/internal/model"
)

// ErrUnknownCommand is returned by Parse for an unrecognised verb.
var ErrUnknownCommand = errors.New("unknown command")

// ErrUsage is returned by Parse when arguments are missing or invalid.
var ErrUsage = errors.New("usage")

// Target is the loop the console submits to. *pipeline.Pipeline satisfies it.
type Target interface {
	Submit(fn func(*engine.Engine)) error
	Start(url string) error
	Stop() error
}

// Command is one parsed console line.
type Command struct {
	// Apply runs on the loop goroutine and returns the reply line.
	Apply func(*engine.Engine) string
	// StartURL is set for "start <url>".
	StartURL string
	// Stop is set for "stop".
	Stop bool
}

// Parse turns one input line into a Command. Blank lines and lines starting
// with '#' parse to a zero Command.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Command{}, nil
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "start":
		if rest == "" {
			return Command{}, fmt.Errorf("%w: start <url>", ErrUsage)
		}
		return Command{StartURL: rest}, nil

	case "stop":
		return Command{Stop: true}, nil

	case "check":
		if rest == "" {
			return Command{}, fmt.Errorf("%w: check <id>", ErrUsage)
		}
		return apply(func(e *engine.Engine) string {
			checked, ok := e.ToggleChecked(rest)
			if !ok {
				return "no such event: " + rest
			}
			return fmt.Sprintf("%s checked=%t", rest, checked)
		}), nil

	case "check-group":
		if rest == "" {
			return Command{}, fmt.Errorf("%w: check-group <key>", ErrUsage)
		}
		key := model.GroupKey(rest)
		return apply(func(e *engine.Engine) string {
			checked, ok := e.ToggleGroupChecked(key)
			if !ok {
				return "no such group: " + rest
			}
			return fmt.Sprintf("%s checked=%t", rest, checked)
		}), nil

	case "remove-checked":
		return apply(func(e *engine.Engine) string {
			return fmt.Sprintf("removed %d", e.RemoveChecked())
		}), nil

	case "reset":
		return apply(func(e *engine.Engine) string {
			return fmt.Sprintf("removed %d", e.Reset())
		}), nil

	case "hide", "show":
		if rest == "" {
			return Command{}, fmt.Errorf("%w: %s <category>", ErrUsage, verb)
		}
		hidden := verb == "hide"
		return apply(func(e *engine.Engine) string {
			e.SetCategoryHidden(model.Category(rest), hidden)
			return "ok"
		}), nil

	case "exclude":
		var hide bool
		switch rest {
		case "on":
			hide = true
		case "off":
		default:
			return Command{}, fmt.Errorf("%w: exclude on|off", ErrUsage)
		}
		return apply(func(e *engine.Engine) string {
			e.SetHideExcluded(hide)
			return "ok"
		}), nil

	case "words":
		words := strings.Split(rest, ",")
		return apply(func(e *engine.Engine) string {
			e.SetExcludeWords(words)
			return "ok"
		}), nil

	case "sort":
		mode, err := model.ParseSortMode(rest)
		if err != nil {
			return Command{}, fmt.Errorf("%w: sort time|group", ErrUsage)
		}
		return apply(func(e *engine.Engine) string {
			if err := e.SetSortMode(mode); err != nil {
				return err.Error()
			}
			return "ok"
		}), nil

	case "limit":
		n, key, ok := strings.Cut(rest, " ")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Command{}, fmt.Errorf("%w: limit <n|inf> <key>", ErrUsage)
		}
		limit, err := parseCap(n)
		if err != nil {
			return Command{}, fmt.Errorf("%w: limit <n|inf> <key>: %v", ErrUsage, err)
		}
		return apply(func(e *engine.Engine) string {
			if err := e.SetGroupLimit(model.GroupKey(key), limit); err != nil {
				return err.Error()
			}
			return "ok"
		}), nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
}

func apply(fn func(*engine.Engine) string) Command {
	return Command{Apply: fn}
}

func parseCap(s string) (model.Cap, error) {
	if s == "inf" || s == "∞" {
		return model.Unlimited, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	c := model.Cap(n)
	if c < 1 || !c.Valid() {
		return 0, fmt.Errorf("cap %d outside 1..%d", n, model.MaxCap)
	}
	return c, nil
}

// Console reads commands from r and writes one reply line per command to w.
type Console struct {
	target Target
	w      io.Writer
}

// New creates a Console submitting to target and replying on w.
func New(target Target, w io.Writer) *Console {
	return &Console{target: target, w: w}
}

// Run reads lines until r is exhausted, ctx is cancelled, or the target
// closes. Each command waits for its reply before the next line is read.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := c.exec(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (c *Console) exec(ctx context.Context, line string) error {
	cmd, err := Parse(line)
	if err != nil {
		c.reply(err.Error())
		return nil
	}

	switch {
	case cmd.StartURL != "":
		err = c.target.Start(cmd.StartURL)
		if err == nil {
			c.reply("starting")
		}
	case cmd.Stop:
		err = c.target.Stop()
		if err == nil {
			c.reply("stopping")
		}
	case cmd.Apply != nil:
		replies := make(chan string, 1)
		err = c.target.Submit(func(e *engine.Engine) { replies <- cmd.Apply(e) })
		if err == nil {
			select {
			case msg := <-replies:
				c.reply(msg)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

func (c *Console) reply(msg string) {
	if _, err := fmt.Fprintln(c.w, msg); err != nil {
		slog.Warn("console write failed", "error", err)
	}
}
