package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCharacterNotFound is returned when no character matches a lookup.
var ErrCharacterNotFound = errors.New("character not found")

// Character is a row of the characters table joined with its guild membership.
type Character struct {
	ID        int64
	AccountID int64
	Name      string
	Race      uint8
	GuildID   int64
	HasGuild  bool
}

// CharacterRepository reads characters from the characters database.
type CharacterRepository struct {
	db *pgxpool.Pool
}

// NewCharacterRepository creates a CharacterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCharacterRepository(db *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{db: db}
}

// FindCharacter finds a character of the account by exact name.
//
// Precondition: name is already normalized.
// Postcondition: Returns ErrCharacterNotFound if the account owns no such character.
func (r *CharacterRepository) FindCharacter(ctx context.Context, name string, accountID int64) (Character, error) {
	var (
		c     Character
		race  int16
		guild *int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT c.guid, c.account, c.name, c.race, gm.guildid
		 FROM characters c
		 LEFT JOIN guild_member gm ON gm.guid = c.guid
		 WHERE c.name = $1 AND c.account = $2`,
		name, accountID,
	).Scan(&c.ID, &c.AccountID, &c.Name, &race, &guild)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Character{}, ErrCharacterNotFound
		}
		return Character{}, fmt.Errorf("querying character: %w", err)
	}
	c.Race = uint8(race)
	if guild != nil {
		c.GuildID = *guild
		c.HasGuild = true
	}
	return c, nil
}

// ListNames returns the names of every character of the account in creation order.
func (r *CharacterRepository) ListNames(ctx context.Context, accountID int64) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name FROM characters WHERE account = $1 ORDER BY guid`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning character names: %w", err)
	}
	return names, nil
}

// Create inserts a character and returns it with its id set.
//
// Postcondition: Guild membership is not written; use SetGuild.
func (r *CharacterRepository) Create(ctx context.Context, c Character) (Character, error) {
	err := r.db.QueryRow(ctx,
		`INSERT INTO characters (account, name, race) VALUES ($1, $2, $3) RETURNING guid`,
		c.AccountID, c.Name, int16(c.Race),
	).Scan(&c.ID)
	if err != nil {
		return Character{}, fmt.Errorf("inserting character: %w", err)
	}
	c.GuildID, c.HasGuild = 0, false
	return c, nil
}

// CreateGuild inserts a guild and returns its id.
func (r *CharacterRepository) CreateGuild(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO guild (name) VALUES ($1) RETURNING guildid`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting guild: %w", err)
	}
	return id, nil
}

// SetGuild records the character as a member of guildID.
func (r *CharacterRepository) SetGuild(ctx context.Context, characterID, guildID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO guild_member (guildid, guid) VALUES ($1, $2)
		 ON CONFLICT (guid) DO UPDATE SET guildid = EXCLUDED.guildid`,
		guildID, characterID,
	)
	if err != nil {
		return fmt.Errorf("setting guild membership: %w", err)
	}
	return nil
}
