// Package chat routes bridge chat commands into the world and fans them out
// to the other live bridge sessions.
package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatbridge/internal/bridge/command"
	"github.com/cory-johannsen/chatbridge/internal/bridge/naming"
	"github.com/cory-johannsen/chatbridge/internal/bridge/session"
	"github.com/cory-johannsen/chatbridge/internal/world"
)

// Filter may rewrite or drop a message body before it is routed.
type Filter interface {
	Apply(kind, sender, body string) (string, bool, error)
}

// Router delivers chat from one bridge session. It holds no per-message state
// and is safe for concurrent use by every session goroutine.
type Router struct {
	registry *session.Registry
	world    world.Service
	filter   Filter
	logger   *zap.Logger
}

// NewRouter creates a Router.
//
// Precondition: registry, w and logger must be non-nil. filter may be nil.
func NewRouter(registry *session.Registry, w world.Service, filter Filter, logger *zap.Logger) *Router {
	return &Router{
		registry: registry,
		world:    w,
		filter:   filter,
		logger:   logger,
	}
}

// Topic posts body to the LFG channel of the sender's faction and to every
// other bound session able to read the sender's faction language.
//
// Postcondition: Returns the number of bridge sessions the line was sent to.
// Nothing is fanned out when the faction has no LFG channel. Any other world
// failure is logged and the local fan-out still happens.
func (r *Router) Topic(ctx context.Context, sender *session.Session, body string) int {
	from, ok := r.senderIdentity(sender)
	if !ok {
		return 0
	}
	body, ok = r.applyFilter(command.Topic, from.PlayerName, body)
	if !ok {
		return 0
	}

	lang := from.Faction.Language()
	ev := world.ChatEvent{
		Kind:       world.ChatChannel,
		Language:   lang,
		SenderID:   from.PlayerID,
		SenderName: from.PlayerName,
		Body:       body,
	}
	if err := r.world.BroadcastChannel(ctx, from.Faction, ev); err != nil {
		r.logWorldError("broadcast channel", from, err, world.ErrChannelNotFound)
		if errors.Is(err, world.ErrChannelNotFound) {
			return 0
		}
	}

	cross := r.crossFaction(ctx)
	line := command.Format('m', from.PlayerName, body)
	return r.fanOut(line, func(to session.Identity) bool {
		return to.PlayerID != from.PlayerID && (cross || lang.UnderstoodBy(to.Faction))
	})
}

// Group posts body to the sender's guild and to the other bound sessions of
// the same guild.
//
// Postcondition: Returns the number of bridge sessions the line was sent to;
// 0 when the sender has no guild or the guild no longer exists. Any other
// world failure is logged and the local fan-out still happens.
func (r *Router) Group(ctx context.Context, sender *session.Session, body string) int {
	from, ok := r.senderIdentity(sender)
	if !ok || !from.HasGuild {
		return 0
	}
	body, ok = r.applyFilter(command.Group, from.PlayerName, body)
	if !ok {
		return 0
	}

	ev := world.ChatEvent{
		Kind:       world.ChatGuild,
		Language:   world.LangUniversal,
		SenderID:   from.PlayerID,
		SenderName: from.PlayerName,
		Body:       body,
	}
	if err := r.world.BroadcastGuild(ctx, from.GuildID, ev); err != nil {
		r.logWorldError("broadcast guild", from, err, world.ErrGuildNotFound)
		if errors.Is(err, world.ErrGuildNotFound) {
			return 0
		}
	}

	line := command.Format('g', from.PlayerName, body)
	return r.fanOut(line, func(to session.Identity) bool {
		return to.PlayerID != from.PlayerID && to.HasGuild && to.GuildID == from.GuildID
	})
}

// Direct sends body to the player named target. An online in-world player
// takes precedence and is reached through the world; otherwise, or when it has
// gone offline since the lookup, the first bound bridge session with exactly
// that name receives the line.
//
// Postcondition: Returns true only if the message was delivered.
func (r *Router) Direct(ctx context.Context, sender *session.Session, target, body string) bool {
	from, ok := r.senderIdentity(sender)
	if !ok {
		return false
	}
	name, ok := naming.NormalizePlayerName(target)
	if !ok {
		return false
	}
	body, ok = r.applyFilter(command.Direct, from.PlayerName, body)
	if !ok {
		return false
	}

	cross := r.crossFaction(ctx)

	player, found, err := r.world.FindPlayer(ctx, name)
	if err != nil {
		r.logger.Warn("finding whisper target",
			zap.String("sender", from.PlayerName),
			zap.String("target", name),
			zap.Error(err),
		)
	}
	if found {
		if !cross && player.Faction() != from.Faction {
			return false
		}
		ev := world.ChatEvent{
			Kind:       world.ChatWhisper,
			Language:   world.LangUniversal,
			SenderID:   from.PlayerID,
			SenderName: from.PlayerName,
			Body:       body,
		}
		err := r.world.Whisper(ctx, player, ev)
		if err == nil {
			return true
		}
		r.logWorldError("whisper", from, err, world.ErrPlayerOffline)
		if !errors.Is(err, world.ErrPlayerOffline) {
			return false
		}
	}

	line := command.Format('w', from.PlayerName, body)
	delivered := false
	r.registry.ForEach(func(s *session.Session) bool {
		to, ok := boundIdentity(s)
		if !ok || to.PlayerName != name {
			return true
		}
		if !cross && to.Faction != from.Faction {
			return true
		}
		delivered = r.send(s, line)
		return false
	})
	return delivered
}

func (r *Router) senderIdentity(s *session.Session) (session.Identity, bool) {
	id, ok := boundIdentity(s)
	if !ok {
		r.logger.Debug("dropping chat from unbound session", zap.String("session", s.ID()))
	}
	return id, ok
}

func boundIdentity(s *session.Session) (session.Identity, bool) {
	if !s.IsBound() {
		return session.Identity{}, false
	}
	return s.Identity()
}

func (r *Router) applyFilter(kind command.Kind, sender, body string) (string, bool) {
	if r.filter == nil {
		return body, true
	}
	out, keep, err := r.filter.Apply(kind.String(), sender, body)
	if err != nil {
		return "", false
	}
	if !keep {
		r.logger.Debug("chat filter dropped message",
			zap.Stringer("kind", kind),
			zap.String("sender", sender),
		)
	}
	return out, keep
}

func (r *Router) crossFaction(ctx context.Context) bool {
	allowed, err := r.world.CrossFactionChat(ctx)
	if err != nil {
		r.logger.Warn("reading cross-faction chat policy", zap.Error(err))
		return false
	}
	return allowed
}

// logWorldError logs expected absences at debug and everything else at warn.
func (r *Router) logWorldError(op string, from session.Identity, err, expected error) {
	fields := []zap.Field{
		zap.String("sender", from.PlayerName),
		zap.Int64("player_id", from.PlayerID),
		zap.Error(err),
	}
	if errors.Is(err, expected) {
		r.logger.Debug(op, fields...)
		return
	}
	r.logger.Warn(op+" failed", fields...)
}

func (r *Router) fanOut(line string, match func(session.Identity) bool) int {
	delivered := 0
	r.registry.ForEach(func(s *session.Session) bool {
		to, ok := boundIdentity(s)
		if ok && match(to) && r.send(s, line) {
			delivered++
		}
		return true
	})
	return delivered
}

func (r *Router) send(s *session.Session, line string) bool {
	if err := s.Send(line); err != nil {
		r.logger.Debug("fan-out send failed", zap.String("session", s.ID()), zap.Error(err))
		return false
	}
	return true
}
