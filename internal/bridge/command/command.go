// Package command parses inbound bridge command lines.
package command

import "strings"

// Kind identifies the parsed command.
type Kind int

const (
	// Unknown lines are ignored by the dispatcher.
	Unknown Kind = iota
	// Topic is "m\<body>": the faction LFG channel.
	Topic
	// Group is "g\<body>": the sender's guild.
	Group
	// Direct is "w\<name>\<body>": one named player.
	Direct
	// ListCharacters is the literal "getchars".
	ListCharacters
	// Quit is one of the literals "quit", "exit" or "logout".
	Quit
)

func (k Kind) String() string {
	switch k {
	case Topic:
		return "topic"
	case Group:
		return "group"
	case Direct:
		return "direct"
	case ListCharacters:
		return "getchars"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Separator delimits the fields of a tagged command line.
const Separator = '\\'

// Command is a parsed line. Target is set only for Direct; Body for Topic,
// Group and Direct.
type Command struct {
	Kind   Kind
	Target string
	Body   string
}

// Parse classifies line by its two-character tag or its exact literal.
//
// Postcondition: Never fails. A whisper with no target name or no separator
// after the name parses as Unknown.
func Parse(line string) Command {
	if len(line) >= 2 && line[1] == Separator {
		rest := line[2:]
		switch line[0] {
		case 'm':
			return Command{Kind: Topic, Body: rest}
		case 'g':
			return Command{Kind: Group, Body: rest}
		case 'w':
			name, body, ok := strings.Cut(rest, string(Separator))
			if !ok || name == "" {
				return Command{Kind: Unknown}
			}
			return Command{Kind: Direct, Target: name, Body: body}
		}
	}
	switch line {
	case "getchars":
		return Command{Kind: ListCharacters}
	case "quit", "exit", "logout":
		return Command{Kind: Quit}
	}
	return Command{Kind: Unknown}
}

// Format renders an outbound routed line: "<tag>\<sender>\<body>".
func Format(tag byte, sender, body string) string {
	var b strings.Builder
	b.Grow(len(sender) + len(body) + 4)
	b.WriteByte(tag)
	b.WriteByte(Separator)
	b.WriteString(sender)
	b.WriteByte(Separator)
	b.WriteString(body)
	return b.String()
}
