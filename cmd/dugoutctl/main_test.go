package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/showdownclub/dugout/internal/blob"
	"github.com/showdownclub/dugout/internal/board"
	"github.com/showdownclub/dugout/internal/client"
	"github.com/showdownclub/dugout/internal/dugout"
	"github.com/showdownclub/dugout/internal/scoreboard"
	"github.com/showdownclub/dugout/internal/server"
	"github.com/showdownclub/dugout/internal/store"
)

func startServer(t *testing.T) string {
	t.Helper()

	st := store.NewLocal()
	t.Cleanup(func() { st.Close() })
	dir, err := blob.NewDir(afero.NewMemMapFs(), "/blobs", "http://dugout.test/blobs", blob.DefaultMaxBytes)
	if err != nil {
		t.Fatal(err)
	}

	srv := server.New("127.0.0.1:0", slog.New(slog.DiscardHandler), server.Deps{
		Store: st,
		Blobs: dir,
		Files: dir,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newCmd(&Config{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("dugoutctl %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestPlayThroughServer(t *testing.T) {
	t.Setenv("DUGOUT_SERVER", startServer(t))
	t.Setenv("DUGOUT_COMPRESS", "false")

	out := mustRun(t, "new")
	m := regexp.MustCompile(`^game (\S+)\n(\S+)\n$`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("new printed %q", out)
	}
	id, shareURL := m[1], m[2]
	if !strings.HasSuffix(shareURL, "?gameId="+id) {
		t.Errorf("share url = %q", shareURL)
	}
	t.Setenv("DUGOUT_GAME", id)

	if got := strings.TrimSpace(mustRun(t, "url")); got != shareURL {
		t.Errorf("url = %q, want %q", got, shareURL)
	}

	out = mustRun(t, "roll", "dice1")
	m = regexp.MustCompile(`^dice1: (\d+)\n$`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("roll printed %q", out)
	}
	rolled := m[1]
	if n, _ := strconv.Atoi(rolled); n < 1 || n > 20 {
		t.Errorf("rolled %d, want 1..20", n)
	}

	out = mustRun(t, "score", "add-run", "away")
	if !strings.Contains(out, "Inning 1, Top, 0 out") {
		t.Errorf("score printed %q", out)
	}

	if _, err := runCLI(t, "place", "pitcher", "https://img.test/ace.png"); !errors.Is(err, client.ErrRestrictedSlot) {
		t.Errorf("place in pitcher: err = %v, want ErrRestrictedSlot", err)
	}

	out = mustRun(t, "place", "batter", "https://img.test/slugger.png")
	m = regexp.MustCompile(`^placed (\S+) in batter\n$`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("place printed %q", out)
	}
	piece := m[1]

	out = mustRun(t, "drag", piece, "--to-slot", "first-base")
	if !strings.Contains(out, piece+" dropped at") {
		t.Errorf("drag with reject-slot printed %q", out)
	}

	out = mustRun(t, "--drop-policy", "accept-slot", "drag", piece, "--to-slot", "second-base")
	if want := piece + " placed in second-base\n"; out != want {
		t.Errorf("drag with accept-slot printed %q, want %q", out, want)
	}

	out = mustRun(t, "show")
	for _, want := range []string{piece, "second-base", "dice1 " + rolled, "dice2 --"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestMissingGame(t *testing.T) {
	t.Setenv("DUGOUT_SERVER", startServer(t))

	if _, err := runCLI(t, "show"); !errors.Is(err, errNoGame) {
		t.Errorf("show without game: err = %v", err)
	}
	_, err := runCLI(t, "--game", "nope", "show")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("show unknown game: err = %v", err)
	}
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad server", []string{"--server", "ftp://x", "url"}, "invalid --server"},
		{"bad policy", []string{"--drop-policy", "sideways", "url"}, "sideways"},
		{"unknown action", []string{"--game", "g", "score", "add-strike"}, "add-strike"},
		{"team missing", []string{"--game", "g", "score", "add-hit"}, "needs team"},
		{"drag needs target", []string{"--game", "g", "drag", "p1"}, "--to-slot"},
		{"drag ambiguous", []string{"--game", "g", "drag", "p1", "--to-slot", "batter", "--x", "1"}, "not both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestWriteScoreboard(t *testing.T) {
	st := dugout.NewScoreboard()
	st, _ = scoreboard.Apply(st, scoreboard.AddRun(scoreboard.Away))
	st, _ = scoreboard.Apply(st, scoreboard.AddOut())

	var buf bytes.Buffer
	writeScoreboard(&buf, scoreboard.Render(st, true, scoreColumns))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "[1]") {
		t.Errorf("current inning not highlighted: %q", lines[0])
	}
	away := strings.Fields(lines[1])
	if len(away) != 1+scoreColumns+3 || away[0] != "Away" || away[1] != "1" || away[len(away)-3] != "1" {
		t.Errorf("away row = %q", lines[1])
	}
	if lines[3] != "Inning 1, Top, 1 out" {
		t.Errorf("state line = %q", lines[3])
	}

	buf.Reset()
	writeScoreboard(&buf, scoreboard.Render(scoreboard.State{}, false, scoreColumns))
	if !strings.Contains(buf.String(), "(scoreboard unavailable)") {
		t.Errorf("invalid scoreboard rendered as live:\n%s", buf.String())
	}
}

func TestWriteDice(t *testing.T) {
	var buf bytes.Buffer
	writeDice(&buf, map[string]int{"dice2": 12})
	if got, want := buf.String(), "Dice: dice1 --  dice2 12\n"; got != want {
		t.Errorf("writeDice = %q, want %q", got, want)
	}
}

func TestDescribeDrop(t *testing.T) {
	tests := []struct {
		drop board.Drop
		want string
	}{
		{board.Drop{PieceID: "p1", Slot: "batter"}, "p1 placed in batter"},
		{board.Drop{PieceID: "p1", X: 100, Y: 50.5, OnField: true}, "p1 dropped at (100px, 50.5px) on the field"},
		{board.Drop{PieceID: "p1", X: 900, Y: 10}, "p1 dropped at (900px, 10px) off the field"},
	}
	for _, tt := range tests {
		if got := describeDrop(tt.drop); got != tt.want {
			t.Errorf("describeDrop(%+v) = %q, want %q", tt.drop, got, tt.want)
		}
	}
}

func TestIsImageRef(t *testing.T) {
	for s, want := range map[string]bool{
		"https://img.test/a.png":     true,
		"http://img.test/a.png":      true,
		"data:image/png;base64,AAAA": true,
		"./pieces/ace.png":           false,
		"ace.png":                    false,
	} {
		if got := isImageRef(s); got != want {
			t.Errorf("isImageRef(%q) = %v, want %v", s, got, want)
		}
	}
}
