package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// errInterrupted is returned by prompts when the session is over before an
// answer was given.
var errInterrupted = errors.New("interrupted")

// prompter reads operator answers line by line. Invalid answers are asked
// again in a loop.
type prompter struct {
	lines <-chan string
	out   io.Writer
	// done aborts pending prompts, typically the job's Done channel.
	done <-chan struct{}
}

// newPrompter starts reading r in the background. The line channel is closed
// at EOF.
func newPrompter(r io.Reader, out io.Writer) *prompter {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return &prompter{lines: lines, out: out}
}

// line waits for the next input line. It returns io.EOF when the input is
// exhausted and errInterrupted when ctx or done fire first.
func (p *prompter) line(ctx context.Context) (string, error) {
	select {
	case l, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(l), nil
	case <-ctx.Done():
		return "", errInterrupted
	case <-p.done:
		return "", errInterrupted
	}
}

// ask prints prompt and returns the trimmed answer.
func (p *prompter) ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	return p.line(ctx)
}

// askFloat asks until the answer is a number accepted by validate.
func (p *prompter) askFloat(ctx context.Context, prompt string, validate func(float64) error) (float64, error) {
	for {
		answer, err := p.ask(ctx, prompt)
		if err != nil {
			return 0, err
		}
		v, err := parseNumber(answer)
		if err != nil {
			fmt.Fprintln(p.out, "Please insert a number.")
			continue
		}
		if validate != nil {
			if err := validate(v); err != nil {
				fmt.Fprintf(p.out, "Invalid value: %v\n", err)
				continue
			}
		}
		return v, nil
	}
}

// askYesNo asks until the answer is yes or no.
func (p *prompter) askYesNo(ctx context.Context, prompt string) (bool, error) {
	for {
		answer, err := p.ask(ctx, prompt)
		if err != nil {
			return false, err
		}
		if v, ok := parseYesNo(answer); ok {
			return v, nil
		}
		fmt.Fprintln(p.out, "Please specify yes or no.")
	}
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func parseYesNo(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	default:
		return false, false
	}
}
