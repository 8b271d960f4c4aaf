// Package main is an administration tool for the databases the chat bridge
// reads: it creates accounts and characters, and sets bans, mutes and guild
// membership.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cory-johannsen/chatbridge/internal/bridge/naming"
	"github.com/cory-johannsen/chatbridge/internal/config"
	"github.com/cory-johannsen/chatbridge/internal/storage/postgres"
)

const usage = `usage: bridgeadmin [-config path] <command> [flags]

commands:
  create-account   -username U -password P [-legacy]
  create-character -username U -name N -race R
  create-guild     -name N
  join-guild       -character-id C -guild-id G
  ban              -username U [-lift]
  mute             -username U -for D (0 clears)
`

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	authPool, err := postgres.NewPool(ctx, cfg.AuthDatabase)
	if err != nil {
		log.Fatalf("connecting to auth database: %v", err)
	}
	defer authPool.Close()
	charPool, err := postgres.NewPool(ctx, cfg.CharacterDatabase)
	if err != nil {
		log.Fatalf("connecting to characters database: %v", err)
	}
	defer charPool.Close()

	a := &admin{
		accounts:   postgres.NewAccountRepository(authPool.DB()),
		characters: postgres.NewCharacterRepository(charPool.DB()),
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var out string
	switch cmd {
	case "create-account":
		out, err = a.createAccount(ctx, args)
	case "create-character":
		out, err = a.createCharacter(ctx, args)
	case "create-guild":
		out, err = a.createGuild(ctx, args)
	case "join-guild":
		out, err = a.joinGuild(ctx, args)
	case "ban":
		out, err = a.ban(ctx, args)
	case "mute":
		out, err = a.mute(ctx, args)
	default:
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
	fmt.Fprintf(os.Stdout, "%s [%s]\n", out, time.Since(start))
}

type admin struct {
	accounts   *postgres.AccountRepository
	characters *postgres.CharacterRepository
}

func parse(name string, args []string, define func(fs *flag.FlagSet)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	define(fs)
	return fs.Parse(args)
}

func (a *admin) createAccount(ctx context.Context, args []string) (string, error) {
	var username, password string
	var legacy bool
	if err := parse("create-account", args, func(fs *flag.FlagSet) {
		fs.StringVar(&username, "username", "", "account name (required)")
		fs.StringVar(&password, "password", "", "password (required)")
		fs.BoolVar(&legacy, "legacy", false, "store the legacy SHA1 digest instead of bcrypt")
	}); err != nil {
		return "", err
	}
	if username == "" || password == "" {
		return "", fmt.Errorf("-username and -password are required")
	}

	user, pass := naming.NormalizeAccount(username), naming.NormalizeAccount(password)
	hash := postgres.LegacyPasswordHash(user, pass)
	if !legacy {
		var err error
		if hash, err = postgres.HashPassword(pass); err != nil {
			return "", fmt.Errorf("hashing password: %w", err)
		}
	}
	id, err := a.accounts.Create(ctx, user, hash)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created account %s (#%d)", user, id), nil
}

func (a *admin) createCharacter(ctx context.Context, args []string) (string, error) {
	var username, name string
	var race uint
	if err := parse("create-character", args, func(fs *flag.FlagSet) {
		fs.StringVar(&username, "username", "", "owning account (required)")
		fs.StringVar(&name, "name", "", "character name (required)")
		fs.UintVar(&race, "race", 1, "race code; 1, 3, 4, 7 and 11 are Alliance")
	}); err != nil {
		return "", err
	}
	canonical, ok := naming.NormalizePlayerName(name)
	if !ok || username == "" || race > 255 {
		return "", fmt.Errorf("a valid -username, -name and -race are required")
	}
	accountID, err := a.accounts.AccountID(ctx, naming.NormalizeAccount(username))
	if err != nil {
		return "", err
	}
	c, err := a.characters.Create(ctx, postgres.Character{AccountID: accountID, Name: canonical, Race: uint8(race)})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created character %s (#%d) on account #%d", c.Name, c.ID, accountID), nil
}

func (a *admin) createGuild(ctx context.Context, args []string) (string, error) {
	var name string
	if err := parse("create-guild", args, func(fs *flag.FlagSet) {
		fs.StringVar(&name, "name", "", "guild name (required)")
	}); err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("-name is required")
	}
	id, err := a.characters.CreateGuild(ctx, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created guild %s (#%d)", name, id), nil
}

func (a *admin) joinGuild(ctx context.Context, args []string) (string, error) {
	var characterID, guildID int64
	if err := parse("join-guild", args, func(fs *flag.FlagSet) {
		fs.Int64Var(&characterID, "character-id", 0, "character guid (required)")
		fs.Int64Var(&guildID, "guild-id", 0, "guild id (required)")
	}); err != nil {
		return "", err
	}
	if characterID == 0 || guildID == 0 {
		return "", fmt.Errorf("-character-id and -guild-id are required")
	}
	if err := a.characters.SetGuild(ctx, characterID, guildID); err != nil {
		return "", err
	}
	return fmt.Sprintf("character #%d joined guild #%d", characterID, guildID), nil
}

func (a *admin) ban(ctx context.Context, args []string) (string, error) {
	var username string
	var lift bool
	if err := parse("ban", args, func(fs *flag.FlagSet) {
		fs.StringVar(&username, "username", "", "account name (required)")
		fs.BoolVar(&lift, "lift", false, "lift the ban instead")
	}); err != nil {
		return "", err
	}
	id, err := a.accounts.AccountID(ctx, naming.NormalizeAccount(username))
	if err != nil {
		return "", err
	}
	if err := a.accounts.SetBanned(ctx, id, !lift); err != nil {
		return "", err
	}
	if lift {
		return fmt.Sprintf("lifted ban on account #%d", id), nil
	}
	return fmt.Sprintf("banned account #%d", id), nil
}

func (a *admin) mute(ctx context.Context, args []string) (string, error) {
	var username string
	var d time.Duration
	if err := parse("mute", args, func(fs *flag.FlagSet) {
		fs.StringVar(&username, "username", "", "account name (required)")
		fs.DurationVar(&d, "for", time.Hour, "mute duration; 0 clears the mute")
	}); err != nil {
		return "", err
	}
	id, err := a.accounts.AccountID(ctx, naming.NormalizeAccount(username))
	if err != nil {
		return "", err
	}
	var until time.Time
	if d > 0 {
		until = time.Now().Add(d)
	}
	if err := a.accounts.SetMute(ctx, id, until); err != nil {
		return "", err
	}
	if until.IsZero() {
		return fmt.Sprintf("cleared mute on account #%d", id), nil
	}
	return fmt.Sprintf("muted account #%d until %s", id, until.Format(time.RFC3339)), nil
}
