package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/platinummonkey/leasescan/internal/form"
)

// clearValue typed at an edit prompt removes the field.
const clearValue = "-"

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgYellow)
	foundColor   = color.New(color.FgGreen)
	missingColor = color.New(color.FgRed)
	dimColor     = color.New(color.Faint)
)

type lineResult struct {
	line string
	err  error
}

// TerminalOperator reviews proposals interactively on a terminal.
type TerminalOperator struct {
	in  *bufio.Reader
	out io.Writer

	once  sync.Once
	lines chan lineResult
}

// NewTerminalOperator reads answers from in and writes prompts to out.
func NewTerminalOperator(in io.Reader, out io.Writer) *TerminalOperator {
	return &TerminalOperator{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Review prints the view and asks for a decision.
func (t *TerminalOperator) Review(ctx context.Context, view View) (Decision, error) {
	t.render(view)

	for {
		fmt.Fprint(t.out, "Apply to the form? [a]ccept / [e]dit / [d]iscard: ")
		line, err := t.readLine(ctx)
		if err != nil {
			return Decision{}, err
		}
		action, err := ParseAction(line)
		if err != nil {
			missingColor.Fprintln(t.out, err.Error())
			continue
		}
		if action != ActionEdit {
			return Decision{Action: action}, nil
		}

		overrides, err := t.edit(ctx, view)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Action: ActionEdit, Overrides: overrides}, nil
	}
}

func (t *TerminalOperator) render(view View) {
	fmt.Fprintln(t.out)
	headerColor.Fprintf(t.out, "Recognized text (%s, confidence %.0f%%)\n", view.Engine, view.Confidence)
	if strings.TrimSpace(view.RawText) == "" {
		dimColor.Fprintln(t.out, "  (no text)")
	}
	for _, line := range strings.Split(view.RawText, "\n") {
		if line != "" {
			fmt.Fprintf(t.out, "  %s\n", line)
		}
	}

	fmt.Fprintln(t.out)
	headerColor.Fprintf(t.out, "Extracted for %s (%d of %d)\n", view.Role, view.Found(), len(view.Items))
	for _, it := range view.Items {
		labelColor.Fprintf(t.out, "  %-22s ", it.Kind.Label()+":")
		if it.Found {
			foundColor.Fprintln(t.out, it.Value)
		} else {
			missingColor.Fprintln(t.out, "not found")
		}
	}
	fmt.Fprintln(t.out)
}

// edit walks every field. Enter keeps the shown value, "-" clears it.
func (t *TerminalOperator) edit(ctx context.Context, view View) (map[form.Key]string, error) {
	dimColor.Fprintf(t.out, "Enter keeps the value, %q clears it.\n", clearValue)

	overrides := make(map[form.Key]string)
	for _, it := range view.Items {
		labelColor.Fprintf(t.out, "  %s", it.Kind.Label())
		if it.Found {
			fmt.Fprintf(t.out, " [%s]", it.Value)
		}
		fmt.Fprint(t.out, ": ")

		line, err := t.readLine(ctx)
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case line == clearValue:
			overrides[it.Key] = ""
		default:
			overrides[it.Key] = line
		}
	}
	return overrides, nil
}

// readLine waits for one line of input or for ctx.
func (t *TerminalOperator) readLine(ctx context.Context) (string, error) {
	t.once.Do(func() {
		t.lines = make(chan lineResult)
		go t.scan()
	})

	select {
	case r, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return "", ctx.Err()
	}
}

func (t *TerminalOperator) scan() {
	defer close(t.lines)
	for {
		line, err := t.in.ReadString('\n')
		if line != "" {
			t.lines <- lineResult{line: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			if err != io.EOF {
				t.lines <- lineResult{err: err}
			}
			return
		}
	}
}
