package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/showdownclub/dugout/internal/client"
	"github.com/showdownclub/dugout/internal/dugout"
	"github.com/showdownclub/dugout/internal/imaging"
	"github.com/showdownclub/dugout/internal/remote"
	"github.com/showdownclub/dugout/internal/store"
)

var errNoGame = errors.New("no game selected: pass --game or set DUGOUT_GAME")

var allStreams = []client.Stream{
	client.StreamSlots,
	client.StreamFloating,
	client.StreamScoreboard,
	client.StreamDice,
}

// table is a client session bound to a remote server.
type table struct {
	remote  *remote.Client
	session *client.Session
	updates chan client.Stream
	stop    context.CancelFunc
	done    chan struct{}
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// connect dials the server and starts a session. The session's game is
// not loaded yet.
func connect(ctx context.Context, cfg *Config) (*table, error) {
	logger := newLogger(cfg, os.Stderr)

	rc, err := remote.New(cfg.server, remote.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if cfg.password != "" {
		if err := rc.Login(ctx, cfg.password); err != nil {
			rc.Close()
			return nil, fmt.Errorf("logging in: %w", err)
		}
	}

	t := &table{
		remote:  rc,
		updates: make(chan client.Stream, 64),
		done:    make(chan struct{}),
	}

	var compress *imaging.Options
	if cfg.compress {
		opts := imaging.DefaultOptions
		compress = &opts
	}

	t.session = client.New(client.Options{
		Store:     rc,
		Blobs:     rc,
		Policy:    cfg.policy,
		Compress:  compress,
		ShareBase: cfg.shareBase(),
		Logger:    logger,
		// Every action returns its error; the command prints it.
		Notifier: client.NotifierFunc(func(err error) { logger.Debug("game action failed", "error", err) }),
		OnUpdate: func(s client.Stream) {
			select {
			case t.updates <- s:
			default:
			}
		},
	})

	runCtx, stop := context.WithCancel(context.Background())
	t.stop = stop
	go func() {
		defer close(t.done)
		t.session.Run(runCtx)
	}()
	return t, nil
}

// open connects and loads the configured game, waiting until every
// stream has delivered its first snapshot.
func open(ctx context.Context, cfg *Config) (*table, error) {
	if cfg.game == "" {
		return nil, errNoGame
	}
	t, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	raw, err := t.remote.Get(ctx, dugout.GamePath(cfg.game))
	if err != nil {
		t.close()
		return nil, fmt.Errorf("looking up game %s: %w", cfg.game, err)
	}
	if !(store.Snapshot{Value: raw}).Exists() {
		t.close()
		return nil, fmt.Errorf("game %s does not exist", cfg.game)
	}
	if err := t.load(ctx, cfg.game, cfg.timeout); err != nil {
		t.close()
		return nil, err
	}
	return t, nil
}

func (t *table) load(ctx context.Context, id string, timeout time.Duration) error {
	if err := t.session.Load(ctx, id); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(map[client.Stream]bool, len(allStreams))
	for len(seen) < len(allStreams) {
		select {
		case s := <-t.updates:
			seen[s] = true
		case <-ctx.Done():
			return fmt.Errorf("loading game %s: %w", id, ctx.Err())
		}
	}
	return nil
}

func (t *table) close() {
	t.stop()
	<-t.done
	t.remote.Close()
}
