package command

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{`m\LFG Deadmines`, Command{Kind: Topic, Body: "LFG Deadmines"}},
		{`m\`, Command{Kind: Topic, Body: ""}},
		{`g\hello guild`, Command{Kind: Group, Body: "hello guild"}},
		{`g\a\b`, Command{Kind: Group, Body: `a\b`}},
		{`w\Bob\hi there`, Command{Kind: Direct, Target: "Bob", Body: "hi there"}},
		{`w\Bob\`, Command{Kind: Direct, Target: "Bob", Body: ""}},
		{`w\Bob\a\b`, Command{Kind: Direct, Target: "Bob", Body: `a\b`}},
		{`w\Bob`, Command{Kind: Unknown}},
		{`w\\hi`, Command{Kind: Unknown}},
		{"getchars", Command{Kind: ListCharacters}},
		{"quit", Command{Kind: Quit}},
		{"exit", Command{Kind: Quit}},
		{"logout", Command{Kind: Quit}},
		{"QUIT", Command{Kind: Unknown}},
		{"getchars ", Command{Kind: Unknown}},
		{"m/hi", Command{Kind: Unknown}},
		{`x\hi`, Command{Kind: Unknown}},
		{"", Command{Kind: Unknown}},
		{"m", Command{Kind: Unknown}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Parse(tt.line), "line %q", tt.line)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "topic", Topic.String())
	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `m\Alice\LFG`, Format('m', "Alice", "LFG"))
	assert.Equal(t, `w\Alice\`, Format('w', "Alice", ""))
}

func TestPropertyDirectRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z]{1,12}`).Draw(t, "name")
		body := rapid.String().Draw(t, "body")
		cmd := Parse(Format('w', name, body))
		if cmd.Kind != Direct || cmd.Target != name || cmd.Body != body {
			t.Fatalf("got %+v for name %q body %q", cmd, name, body)
		}
	})
}

func TestPropertyUntaggedLinesAreNeverRouted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		line := rapid.String().Draw(t, "line")
		if len(line) >= 2 && line[1] == Separator {
			t.Skip("tagged")
		}
		switch Parse(line).Kind {
		case Topic, Group, Direct:
			t.Fatalf("untagged line %q routed", line)
		}
		if strings.ContainsRune(line, Separator) && Parse(line).Kind != Unknown {
			t.Fatalf("line %q with separator parsed as literal", line)
		}
	})
}
