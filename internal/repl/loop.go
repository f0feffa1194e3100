package repl

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"
)

const prompt = "\nYou: "

// Run reads input until `\q`, EOF or an interrupt. Action errors are reported
// and the session continues.
func (d *Dispatcher) Run(ctx context.Context, in LineInput) error {
	for {
		if ctx.Err() != nil {
			d.bye()
			return nil
		}
		line, err := in.ReadLine(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupt) {
				d.bye()
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		err = d.Dispatch(ctx, line)
		switch {
		case err == nil:
		case errors.Is(err, ErrQuit):
			d.bye()
			return nil
		case ctx.Err() != nil:
			// interrupted mid-turn
			d.bye()
			return nil
		case errors.Is(err, ErrNoMatch):
			d.console.Warn(`Unrecognized input, type \h for help`)
		default:
			d.logger.Warn("action failed", zap.Error(err))
			d.console.Errorf("Error: %v", err)
		}
	}
}

func (d *Dispatcher) bye() {
	d.console.Printf("\n%s Bye 👋\n", d.console.Theme().TitleStyle.Render("Assistant:"))
}
