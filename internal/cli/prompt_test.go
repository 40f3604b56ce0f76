package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cfgsync/internal/platformtest"
	"github.com/lherron/cfgsync/internal/resolve"
	"github.com/lherron/cfgsync/internal/resource"
)

type getterFunc func(ctx context.Context, id string) (*resource.Resource, error)

func (f getterFunc) GetDashboard(ctx context.Context, id string) (*resource.Resource, error) {
	return f(ctx, id)
}

func question() resolve.Question {
	incoming := platformtest.Dashboard("src-1", "CPU")
	incoming.Title = "CPU"
	_ = incoming.SetField("description", "new")
	return resolve.Question{Title: "CPU", SourceID: "src-1", ExistingID: "tgt-9", Incoming: incoming}
}

func TestTerminalPrompterAnswers(t *testing.T) {
	tests := []struct {
		input string
		want  resolve.Answer
	}{
		{"s\n", resolve.AnswerSkip},
		{"UPDATE\n", resolve.AnswerUpdate},
		{"c\n", resolve.AnswerAbort},
		{"nope\nu\n", resolve.AnswerUpdate},
		{"", resolve.AnswerAbort},
		{"s", resolve.AnswerSkip},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		p := newTerminalPrompter(strings.NewReader(tt.input), &out, nil)
		got, err := p.Ask(context.Background(), question())
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
		assert.Contains(t, out.String(), `Dashboard "CPU" already exists`)
	}
}

func TestTerminalPrompterDiff(t *testing.T) {
	existing := platformtest.Dashboard("tgt-9", "CPU")
	_ = existing.SetField("description", "old")
	var fetched string
	getter := getterFunc(func(_ context.Context, id string) (*resource.Resource, error) {
		fetched = id
		return existing, nil
	})

	var out bytes.Buffer
	p := newTerminalPrompter(strings.NewReader("d\ns\n"), &out, getter)
	got, err := p.Ask(context.Background(), question())
	require.NoError(t, err)
	assert.Equal(t, resolve.AnswerSkip, got)
	assert.Equal(t, "tgt-9", fetched)
	assert.Contains(t, out.String(), "--- target")
	assert.Contains(t, out.String(), "+++ incoming")
	assert.Contains(t, out.String(), `-  "description": "old"`)
	assert.Contains(t, out.String(), `+  "description": "new"`)
}

func TestTerminalPrompterDiffFetchError(t *testing.T) {
	getter := getterFunc(func(context.Context, string) (*resource.Resource, error) {
		return nil, errors.New("gone")
	})

	var out bytes.Buffer
	p := newTerminalPrompter(strings.NewReader("d\nu\n"), &out, getter)
	got, err := p.Ask(context.Background(), question())
	require.NoError(t, err)
	assert.Equal(t, resolve.AnswerUpdate, got)
	assert.Contains(t, out.String(), "Could not fetch the existing dashboard: gone")
}

func TestDashboardDiffIdentical(t *testing.T) {
	d := platformtest.Dashboard("tgt-1", "Same")
	text, err := dashboardDiff(d, d.Clone(), "tgt-1")
	require.NoError(t, err)
	assert.Empty(t, text)
}
