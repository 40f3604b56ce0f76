package render

import (
	"bytes"
	"strings"
	"testing"
)

type counts struct {
	Created int `json:"created" yaml:"created"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

func (c counts) Headers() []string { return []string{"OUTCOME", "COUNT"} }

func (c counts) Rows() [][]string {
	return [][]string{{"created", "12"}, {"skipped", "3"}}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatTable, "JSON": FormatJSON, "yaml": FormatYAML, "tsv": FormatTSV} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestRenderFormats(t *testing.T) {
	data := counts{Created: 12, Skipped: 3}
	tests := []struct {
		format Format
		want   []string
	}{
		{FormatTable, []string{"OUTCOME  COUNT\n", "-------  -----\n", "created  12\n"}},
		{FormatTSV, []string{"OUTCOME\tCOUNT\n", "skipped\t3\n"}},
		{FormatJSON, []string{`"created": 12`}},
		{FormatYAML, []string{"created: 12\n", "skipped: 3\n"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewRenderer(&buf, Options{Format: tt.format}).Render(data); err != nil {
				t.Fatalf("Render: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("expected %q in output:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestRenderPorcelain(t *testing.T) {
	data := counts{Created: 12, Skipped: 3}

	var table bytes.Buffer
	if err := NewRenderer(&table, Options{Format: FormatTable, Porcelain: true}).Render(data); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(table.String(), "---") || !strings.Contains(table.String(), "created\t12\n") {
		t.Errorf("unexpected porcelain table:\n%s", table.String())
	}

	var js bytes.Buffer
	if err := NewRenderer(&js, Options{Format: FormatJSON, Porcelain: true}).Render(data); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Count(js.String(), "\n") != 1 {
		t.Errorf("expected compact JSON, got:\n%s", js.String())
	}
}

func TestRenderTableRequiresTabular(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRenderer(&buf, Options{Format: FormatTable}).Render(map[string]int{"a": 1}); err == nil {
		t.Error("expected error for non-tabular data")
	}
}
