package world

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Delivery records one event accepted by a Local world.
type Delivery struct {
	// Target is "guild:<id>", "channel:<name>" or "player:<name>".
	Target string
	Event  ChatEvent
}

// Local is an in-process world. It keeps its guilds, channels and online
// players in memory and records every delivered event.
// All methods are safe for concurrent use.
type Local struct {
	mu           sync.RWMutex
	motd         string
	crossFaction bool
	guilds       map[int64]string
	channels     map[Faction]string
	players      map[string]Player
	deliveries   []Delivery
	logger       *zap.Logger
}

// NewLocal creates a Local world with one LFG channel per faction.
//
// Precondition: logger must be non-nil.
func NewLocal(motd string, crossFaction bool, logger *zap.Logger) *Local {
	return &Local{
		motd:         motd,
		crossFaction: crossFaction,
		guilds:       make(map[int64]string),
		channels: map[Faction]string{
			Alliance: "LookingForGroup",
			Horde:    "LookingForGroup",
		},
		players: make(map[string]Player),
		logger:  logger,
	}
}

// AddGuild makes a guild resolvable.
func (l *Local) AddGuild(id int64, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.guilds[id] = name
}

// RemoveGuild disbands a guild.
func (l *Local) RemoveGuild(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.guilds, id)
}

// RemoveChannel drops the LFG channel of a faction.
func (l *Local) RemoveChannel(f Faction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.channels, f)
}

// AddPlayer puts a player online.
func (l *Local) AddPlayer(p Player) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.players[p.Name] = p
}

// SetCrossFactionChat toggles the cross-faction chat policy.
func (l *Local) SetCrossFactionChat(allowed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.crossFaction = allowed
}

// Deliveries returns a copy of every event delivered so far.
func (l *Local) Deliveries() []Delivery {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Delivery, len(l.deliveries))
	copy(out, l.deliveries)
	return out
}

func (l *Local) Motd(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.motd, nil
}

func (l *Local) CrossFactionChat(_ context.Context) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.crossFaction, nil
}

func (l *Local) FindPlayer(_ context.Context, name string) (Player, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.players[name]
	return p, ok, nil
}

func (l *Local) BroadcastGuild(_ context.Context, guildID int64, ev ChatEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	name, ok := l.guilds[guildID]
	if !ok {
		return ErrGuildNotFound
	}
	l.record("guild:"+name, ev)
	return nil
}

func (l *Local) BroadcastChannel(_ context.Context, faction Faction, ev ChatEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	name, ok := l.channels[faction]
	if !ok {
		return ErrChannelNotFound
	}
	l.record("channel:"+name, ev)
	return nil
}

func (l *Local) Whisper(_ context.Context, to Player, ev ChatEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.players[to.Name]; !ok {
		return ErrPlayerOffline
	}
	l.record("player:"+to.Name, ev)
	return nil
}

// record must be called with l.mu held.
func (l *Local) record(target string, ev ChatEvent) {
	l.deliveries = append(l.deliveries, Delivery{Target: target, Event: ev})
	l.logger.Debug("world delivery",
		zap.String("target", target),
		zap.Stringer("kind", ev.Kind),
		zap.String("sender", ev.SenderName),
	)
}
