// Package handlers implements the bridge session flow: policy probe,
// authentication, character selection and the command loop.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatbridge/internal/bridge/chat"
	"github.com/cory-johannsen/chatbridge/internal/bridge/command"
	"github.com/cory-johannsen/chatbridge/internal/bridge/naming"
	"github.com/cory-johannsen/chatbridge/internal/bridge/session"
	"github.com/cory-johannsen/chatbridge/internal/frontend/linewire"
	"github.com/cory-johannsen/chatbridge/internal/observability"
	"github.com/cory-johannsen/chatbridge/internal/storage/postgres"
	"github.com/cory-johannsen/chatbridge/internal/world"
)

var (
	// ErrAuthFailed covers bad credentials, banned accounts and unknown accounts.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrCharacterNotFound is returned when the account owns no character of that name.
	ErrCharacterNotFound = errors.New("character not found")
	// ErrMuted is returned when the account is muted or its mute cannot be read.
	ErrMuted = errors.New("account muted")
)

const (
	// PolicyRequest is the pre-auth probe sent by socket policy clients.
	PolicyRequest = "<policy-file-request/>"
	// PolicyResponse is answered to PolicyRequest, followed by one NUL byte.
	PolicyResponse = `<?xml version="1.0"?><cross-domain-policy><allow-access-from domain="*" to-ports="*" /></cross-domain-policy>`

	msgAuthFailed        = "Authentication failed"
	msgCharacterNotFound = "Character not found"
)

// AccountStore is the auth database view the bridge needs.
// Usernames and passwords are passed normalized.
type AccountStore interface {
	CheckPassword(ctx context.Context, username, password string) (int64, error)
	IsBanned(ctx context.Context, accountID int64) (bool, error)
	AccountID(ctx context.Context, username string) (int64, error)
	MuteExpiry(ctx context.Context, accountID int64) (time.Time, error)
}

// CharacterStore is the characters database view the bridge needs.
type CharacterStore interface {
	FindCharacter(ctx context.Context, name string, accountID int64) (postgres.Character, error)
	ListNames(ctx context.Context, accountID int64) ([]string, error)
}

// lineConn is the part of linewire.Conn the flow uses.
type lineConn interface {
	ReadLine() (string, error)
	WriteLine(text string) error
	Write(data []byte) error
	Close() error
}

// BridgeHandler implements linewire.SessionHandler. One HandleSession call
// serves one connection from accept to close.
type BridgeHandler struct {
	accounts            AccountStore
	characters          CharacterStore
	world               world.Service
	registry            *session.Registry
	router              *chat.Router
	legacyListSeparator bool
	now                 func() time.Time
	logger              *zap.Logger
}

// Option customizes a BridgeHandler.
type Option func(*BridgeHandler)

// WithLegacyListSeparator keeps the trailing comma after the last character name.
func WithLegacyListSeparator(keep bool) Option {
	return func(h *BridgeHandler) { h.legacyListSeparator = keep }
}

// WithClock replaces the clock used for mute checks.
func WithClock(now func() time.Time) Option {
	return func(h *BridgeHandler) { h.now = now }
}

// NewBridgeHandler creates a BridgeHandler.
//
// Precondition: every argument must be non-nil.
// Postcondition: Returns a handler ready to serve sessions. The legacy list
// separator is on unless disabled by an Option.
func NewBridgeHandler(
	accounts AccountStore,
	characters CharacterStore,
	w world.Service,
	registry *session.Registry,
	router *chat.Router,
	logger *zap.Logger,
	opts ...Option,
) *BridgeHandler {
	h := &BridgeHandler{
		accounts:            accounts,
		characters:          characters,
		world:               w,
		registry:            registry,
		router:              router,
		legacyListSeparator: true,
		now:                 time.Now,
		logger:              logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSession implements linewire.SessionHandler.
//
// Postcondition: The session is unregistered before its connection is closed.
// Returns nil on quit, otherwise the error that ended the session.
func (h *BridgeHandler) HandleSession(ctx context.Context, conn *linewire.Conn) error {
	return h.serve(ctx, conn, conn.RemoteAddr().String())
}

func (h *BridgeHandler) serve(ctx context.Context, conn lineConn, addr string) error {
	start := time.Now()
	sess := session.New(conn, addr)
	logger := h.logger.With(observability.SessionFields(sess.ID(), addr)...)

	h.registry.Register(sess)
	defer func() {
		h.registry.Unregister(sess)
		_ = sess.Close()
		logger.Debug("closing connection", zap.Duration("session_duration", time.Since(start)))
	}()

	accountID, err := h.authenticate(ctx, conn, sess, logger)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			logger.Debug("authentication failed", zap.Error(err))
			_ = sess.Send(msgAuthFailed)
		}
		return err
	}

	if err := h.selectCharacter(ctx, conn, sess, accountID, logger); err != nil {
		if errors.Is(err, ErrCharacterNotFound) {
			logger.Debug("character selection failed", zap.Error(err))
			_ = sess.Send(msgCharacterNotFound)
		}
		return err
	}

	return h.commandLoop(ctx, conn, sess, accountID, logger)
}

// authenticate reads the credentials, answering at most one policy probe first.
func (h *BridgeHandler) authenticate(ctx context.Context, conn lineConn, sess *session.Session, logger *zap.Logger) (int64, error) {
	username, err := conn.ReadLine()
	if err != nil {
		return 0, fmt.Errorf("reading username: %w", err)
	}
	if username == PolicyRequest {
		if err := conn.Write([]byte(PolicyResponse + "\x00")); err != nil {
			return 0, fmt.Errorf("writing policy: %w", err)
		}
		logger.Debug("served policy file")
		if username, err = conn.ReadLine(); err != nil {
			return 0, fmt.Errorf("reading username: %w", err)
		}
	}

	password, err := conn.ReadLine()
	if err != nil {
		return 0, fmt.Errorf("reading password: %w", err)
	}

	user := naming.NormalizeAccount(username)
	pass := naming.NormalizeAccount(password)
	logger.Debug("login attempt", zap.String("account", user))

	checkedID, err := h.accounts.CheckPassword(ctx, user, pass)
	if err != nil {
		return 0, fmt.Errorf("%w: checking password: %w", ErrAuthFailed, err)
	}
	banned, err := h.accounts.IsBanned(ctx, checkedID)
	if err != nil {
		return 0, fmt.Errorf("%w: checking ban: %w", ErrAuthFailed, err)
	}
	if banned {
		return 0, fmt.Errorf("%w: account %d is banned", ErrAuthFailed, checkedID)
	}
	accountID, err := h.accounts.AccountID(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("%w: resolving account id: %w", ErrAuthFailed, err)
	}
	if err := sess.Authenticate(accountID); err != nil {
		return 0, err
	}

	logger.Debug("user login", zap.String("account", user), zap.Int64("account_id", accountID))
	return accountID, nil
}

// selectCharacter binds the session to a character of the account, then sends
// the character list and the message of the day.
func (h *BridgeHandler) selectCharacter(ctx context.Context, conn lineConn, sess *session.Session, accountID int64, logger *zap.Logger) error {
	line, err := conn.ReadLine()
	if err != nil {
		return fmt.Errorf("reading character name: %w", err)
	}
	name, ok := naming.NormalizePlayerName(line)
	if !ok {
		return fmt.Errorf("%w: invalid name %q", ErrCharacterNotFound, line)
	}

	c, err := h.characters.FindCharacter(ctx, name, accountID)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCharacterNotFound, name, err)
	}

	binding := session.Binding{
		PlayerID:   c.ID,
		PlayerName: c.Name,
		Faction:    world.FactionForRace(c.Race),
		GuildID:    c.GuildID,
		HasGuild:   c.HasGuild,
	}
	if err := sess.Bind(binding); err != nil {
		logger.Error("binding character", zap.String("player", c.Name), zap.Error(err))
		return err
	}
	if err := sess.Activate(); err != nil {
		logger.Error("activating session", zap.String("player", c.Name), zap.Error(err))
		return err
	}
	logger.Debug("player connected",
		zap.String("player", c.Name),
		zap.Int64("player_id", c.ID),
		zap.Stringer("faction", binding.Faction),
	)

	h.sendCharacterList(ctx, sess, accountID, logger)

	motd, err := h.world.Motd(ctx)
	if err != nil {
		logger.Warn("fetching motd", zap.Error(err))
		return nil
	}
	_ = sess.Send(motd)
	return nil
}

func (h *BridgeHandler) sendCharacterList(ctx context.Context, sess *session.Session, accountID int64, logger *zap.Logger) {
	names, err := h.characters.ListNames(ctx, accountID)
	if err != nil {
		logger.Warn("listing characters", zap.Error(err))
		return
	}
	if len(names) == 0 {
		return
	}
	list := strings.Join(names, ",")
	if h.legacyListSeparator {
		list += ","
	}
	_ = sess.Send(list)
}

func (h *BridgeHandler) commandLoop(ctx context.Context, conn lineConn, sess *session.Session, accountID int64, logger *zap.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := conn.ReadLine()
		if err != nil {
			return fmt.Errorf("reading command: %w", err)
		}

		if err := h.checkMute(ctx, accountID); err != nil {
			logger.Debug("closing muted session", zap.Error(err))
			return err
		}

		cmd := command.Parse(line)
		switch cmd.Kind {
		case command.Topic:
			h.router.Topic(ctx, sess, cmd.Body)
		case command.Group:
			h.router.Group(ctx, sess, cmd.Body)
		case command.Direct:
			if !h.router.Direct(ctx, sess, cmd.Target, cmd.Body) {
				logger.Debug("whisper not delivered", zap.String("target", cmd.Target))
			}
		case command.ListCharacters:
			h.sendCharacterList(ctx, sess, accountID, logger)
		case command.Quit:
			logger.Debug("client quit")
			return nil
		}
	}
}

// checkMute re-reads the mute expiry; it is never cached.
func (h *BridgeHandler) checkMute(ctx context.Context, accountID int64) error {
	expiry, err := h.accounts.MuteExpiry(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: reading mute expiry: %w", ErrMuted, err)
	}
	if expiry.After(h.now()) {
		return fmt.Errorf("%w: until %s", ErrMuted, expiry.Format(time.RFC3339))
	}
	return nil
}
