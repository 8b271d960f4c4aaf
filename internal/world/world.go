// Package world describes the game world the bridge broadcasts into: factions,
// chat languages, chat events, and the Service contract the world exposes.
// Client reaches a remote world over gRPC; Local is an in-process world used
// by the development stub and tests.
package world

import (
	"context"
	"errors"
)

var (
	// ErrGuildNotFound is returned when a guild id no longer resolves.
	ErrGuildNotFound = errors.New("guild not found")
	// ErrChannelNotFound is returned when a faction has no LFG channel.
	ErrChannelNotFound = errors.New("lfg channel not found")
	// ErrPlayerOffline is returned when a whisper target is no longer online.
	ErrPlayerOffline = errors.New("player offline")
)

// Faction is one of the two mutually exclusive alliance groupings.
type Faction uint8

const (
	Alliance Faction = 0
	Horde    Faction = 1
)

// allianceRaces are the race codes that belong to the Alliance.
var allianceRaces = map[uint8]bool{1: true, 3: true, 4: true, 7: true, 11: true}

// FactionForRace classifies a character race code.
func FactionForRace(race uint8) Faction {
	if allianceRaces[race] {
		return Alliance
	}
	return Horde
}

func (f Faction) String() string {
	if f == Alliance {
		return "alliance"
	}
	return "horde"
}

// Language is the in-world chat language code of an event.
type Language uint32

const (
	LangUniversal Language = 0
	LangOrcish    Language = 1
	LangCommon    Language = 7
)

// Language returns the language faction members speak on public channels.
func (f Faction) Language() Language {
	if f == Alliance {
		return LangCommon
	}
	return LangOrcish
}

// UnderstoodBy reports whether members of f understand an event in language l.
func (l Language) UnderstoodBy(f Faction) bool {
	return l == LangUniversal || l == f.Language()
}

// ChatKind identifies the in-world chat primitive carrying an event.
type ChatKind int

const (
	ChatGuild ChatKind = iota
	ChatChannel
	ChatWhisper
)

func (k ChatKind) String() string {
	switch k {
	case ChatGuild:
		return "guild"
	case ChatChannel:
		return "channel"
	case ChatWhisper:
		return "whisper"
	default:
		return "unknown"
	}
}

// ChatEvent is a chat message emitted into the world on behalf of a bridge player.
type ChatEvent struct {
	Kind       ChatKind
	Language   Language
	SenderID   int64
	SenderName string
	Body       string
}

// Player is an online in-world character.
type Player struct {
	ID   int64
	Name string
	Race uint8
}

// Faction returns the player's faction.
func (p Player) Faction() Faction {
	return FactionForRace(p.Race)
}

// Service is the set of world operations the bridge relies on.
type Service interface {
	// Motd returns the current message of the day.
	Motd(ctx context.Context) (string, error)
	// CrossFactionChat reports whether chat between factions is allowed.
	CrossFactionChat(ctx context.Context) (bool, error)
	// FindPlayer looks up an online player by exact canonical name.
	FindPlayer(ctx context.Context, name string) (Player, bool, error)
	// BroadcastGuild delivers ev to all online members of the guild, or ErrGuildNotFound.
	BroadcastGuild(ctx context.Context, guildID int64, ev ChatEvent) error
	// BroadcastChannel delivers ev into the faction's LFG channel, or ErrChannelNotFound.
	BroadcastChannel(ctx context.Context, faction Faction, ev ChatEvent) error
	// Whisper delivers ev to one online player, or ErrPlayerOffline.
	Whisper(ctx context.Context, to Player, ev ChatEvent) error
}
