// Command notesync pulls tagged notes from the remote store into a local database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/note-sync/internal/config"
	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/model"
	"github.com/and161185/note-sync/internal/repository/postgres"
	"github.com/and161185/note-sync/internal/repository/sqlite"
	"github.com/and161185/note-sync/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `notesync CLI
Usage:
  notesync <cmd> [flags]

Commands:
  version
  sync   -dsn <dsn> (-token <jwt> | -account <uuid>) -tag <tag> [-db notes.db] [-policy report-first]
  list   [-db notes.db] [-passphrase ...]                 (prints local notes as JSON)
  put    -dsn <dsn> (-token <jwt> | -account <uuid>) -key <key> -file <path|-> [-tags a,b] [-version <base>] [-delete]

Every flag can also be set with NOTESYNC_* environment variables; run "notesync <cmd> -h" for the list.
`)
	os.Exit(2)
}

// main dispatches subcommands.
func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "version":
		fmt.Printf("notesync %s (%s)\n", version, buildDate)
	case "sync":
		cfg, _ := parse(cmd, args, nil)
		if err := cfg.ValidateSync(); err != nil {
			fail(err)
		}
		log := mustLogger(cfg)
		defer func() { _ = log.Sync() }()
		if err := cmdSync(ctx, cfg, log); err != nil {
			fail(err)
		}
	case "list":
		cfg, _ := parse(cmd, args, nil)
		if err := cfg.Validate(); err != nil {
			fail(err)
		}
		if err := cmdList(ctx, cfg, os.Stdout); err != nil {
			fail(err)
		}
	case "put":
		var p putFlags
		cfg, _ := parse(cmd, args, p.bind)
		if err := cfg.ValidateRemote(); err != nil {
			fail(err)
		}
		note, err := p.note()
		if err != nil {
			fail(err)
		}
		ver, err := cmdPut(ctx, cfg, note)
		if err != nil {
			fail(err)
		}
		printJSON(os.Stdout, map[string]any{"key": note.Key, "version": ver})
	default:
		usage()
	}
}

// parse loads the environment and parses args; extra registers command-specific flags.
func parse(name string, args []string, extra func(*flag.FlagSet)) (*config.Config, []string) {
	cfg, err := config.FromEnv(os.Environ())
	if err != nil {
		fail(err)
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfg.Bind(fs)
	if extra != nil {
		extra(fs)
	}
	_ = fs.Parse(args)
	return cfg, fs.Args()
}

func mustLogger(cfg *config.Config) *zap.Logger {
	log, err := cfg.Logger()
	if err != nil {
		fail(err)
	}
	return log
}

func cmdSync(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	s, err := session.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	if err := s.Reconciler().Sync(ctx); err != nil {
		return err
	}
	fmt.Printf("synced tag %q in %s\n", s.Tag, time.Since(start).Round(time.Millisecond))
	return nil
}

// listedNote is the JSON shape printed by list.
type listedNote struct {
	Key        string    `json:"key"`
	Version    int64     `json:"version"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	SystemTags []string  `json:"system_tags,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
}

func cmdList(ctx context.Context, cfg *config.Config, w io.Writer) error {
	store, err := sqlite.Open(ctx, cfg.LocalPath, cfg.Passphrase)
	if err != nil {
		return err
	}
	defer store.Close()

	notes, err := store.List(ctx)
	if err != nil {
		return err
	}
	out := make([]listedNote, 0, len(notes))
	for _, n := range notes {
		out = append(out, listedNote{
			Key: n.Key, Version: n.Version, Content: n.Content,
			Tags: n.Tags, SystemTags: n.SystemTags,
			CreatedAt: n.CreatedAt, ModifiedAt: n.ModifiedAt,
		})
	}
	printJSON(w, out)
	return nil
}

type putFlags struct {
	key     string
	file    string
	tags    string
	base    int64
	deleted bool
	stdin   io.Reader
}

func (p *putFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&p.key, "key", "", "note key (required)")
	fs.StringVar(&p.file, "file", "", "content file, - for stdin")
	fs.StringVar(&p.tags, "tags", "", "comma-separated tags")
	fs.Int64Var(&p.base, "version", 0, "base version the write applies to (0 creates)")
	fs.BoolVar(&p.deleted, "delete", false, "publish a tombstone")
}

func (p *putFlags) note() (model.Note, error) {
	if p.key == "" {
		return model.Note{}, fmt.Errorf("%w: -key is required", errs.ErrInvalidConfig)
	}
	n := model.Note{Key: p.key, Version: p.base, Tags: splitTags(p.tags), Deleted: p.deleted}
	if p.file == "" {
		if !p.deleted {
			return model.Note{}, fmt.Errorf("%w: -file is required", errs.ErrInvalidConfig)
		}
		return n, nil
	}
	b, err := readAll(p.file, p.stdin)
	if err != nil {
		return model.Note{}, err
	}
	n.Content = string(b)
	return n, nil
}

func cmdPut(ctx context.Context, cfg *config.Config, n model.Note) (int64, error) {
	account, err := session.Account(cfg)
	if err != nil {
		return 0, err
	}
	db, err := postgres.New(ctx, cfg.RemoteDSN)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return postgres.NewNoteRepo(db, account).Put(ctx, n)
}

// ---- helpers ----

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func readAll(p string, stdin io.Reader) ([]byte, error) {
	if p == "-" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.ReadAll(stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		fmt.Fprintln(os.Stderr, "unauthorized:", err)
	case errors.Is(err, errs.ErrInvalidConfig):
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, `run "notesync" for usage`)
	default:
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}
