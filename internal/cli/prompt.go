package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/lherron/cfgsync/internal/resolve"
	"github.com/lherron/cfgsync/internal/resource"
)

// dashboardGetter fetches the existing target dashboard for the diff view
type dashboardGetter interface {
	GetDashboard(ctx context.Context, id string) (*resource.Resource, error)
}

// terminalPrompter asks about duplicates on a terminal
type terminalPrompter struct {
	in     *bufio.Reader
	out    io.Writer
	target dashboardGetter
}

func newTerminalPrompter(in io.Reader, out io.Writer, target dashboardGetter) *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(in), out: out, target: target}
}

// Ask implements resolve.Prompter
func (p *terminalPrompter) Ask(ctx context.Context, q resolve.Question) (resolve.Answer, error) {
	for {
		fmt.Fprintf(p.out, "\nDashboard %q already exists in the target (id %s).\n", q.Title, q.ExistingID)
		fmt.Fprintln(p.out, "  [s] Skip")
		fmt.Fprintln(p.out, "  [u] Update existing dashboard")
		fmt.Fprintln(p.out, "  [d] Show differences")
		fmt.Fprintln(p.out, "  [c] Cancel migration")
		fmt.Fprint(p.out, "Enter your choice [s/u/d/c]: ")

		line, err := p.in.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return 0, err
			}
			// closed input cancels rather than looping forever
			if strings.TrimSpace(line) == "" {
				return resolve.AnswerAbort, nil
			}
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "s", "skip":
			return resolve.AnswerSkip, nil
		case "u", "update":
			return resolve.AnswerUpdate, nil
		case "c", "cancel", "a", "abort":
			return resolve.AnswerAbort, nil
		case "d", "diff":
			p.showDiff(ctx, q)
		default:
			fmt.Fprintln(p.out, "Invalid choice. Please try again.")
		}
	}
}

func (p *terminalPrompter) showDiff(ctx context.Context, q resolve.Question) {
	existing, err := p.target.GetDashboard(ctx, q.ExistingID)
	if err != nil {
		fmt.Fprintf(p.out, "Could not fetch the existing dashboard: %v\n", err)
		return
	}
	text, err := dashboardDiff(existing, q.Incoming, q.ExistingID)
	if err != nil {
		fmt.Fprintf(p.out, "Could not compare dashboards: %v\n", err)
		return
	}
	if text == "" {
		fmt.Fprintln(p.out, "No differences.")
		return
	}
	fmt.Fprint(p.out, text)
}

// dashboardDiff renders a unified diff between the target's current payload
// and the one an update would write
func dashboardDiff(current, incoming *resource.Resource, existingID string) (string, error) {
	if incoming == nil {
		return "", errors.New("no incoming payload")
	}
	next := incoming.Clone()
	next.ID = existingID

	a, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return "", err
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a) + "\n"),
		B:        difflib.SplitLines(string(b) + "\n"),
		FromFile: "target",
		ToFile:   "incoming",
		Context:  3,
	})
}
