package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/showdownclub/dugout/internal/board"
	"github.com/showdownclub/dugout/internal/client"
	"github.com/showdownclub/dugout/internal/dugout"
	"github.com/showdownclub/dugout/internal/scoreboard"
)

func (t *table) renderScoreboard(ctx context.Context, w io.Writer) error {
	st, ok, err := t.session.Scoreboard(ctx)
	if err != nil {
		return err
	}
	writeScoreboard(w, scoreboard.Render(st, ok, scoreColumns))
	if ok {
		if o := scoreboard.Decide(st); o.Over {
			fmt.Fprintf(w, "Game over: %s wins\n", o.Winner)
		}
	}
	return nil
}

func (t *table) render(ctx context.Context, w io.Writer) error {
	if err := t.renderScoreboard(ctx, w); err != nil {
		return err
	}
	dice, err := t.session.Dice(ctx)
	if err != nil {
		return err
	}
	writeDice(w, dice)
	placements, err := t.session.Placements(ctx)
	if err != nil {
		return err
	}
	writePlacements(w, placements)
	return nil
}

func writeScoreboard(w io.Writer, v scoreboard.View) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)

	header := []string{""}
	for i := range v.Away.Innings {
		label := fmt.Sprint(i + 1)
		if i == v.CurrentColumn {
			label = "[" + label + "]"
		}
		header = append(header, label)
	}
	header = append(header, "R", "H", "E")
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, l := range []scoreboard.Line{v.Away, v.Home} {
		row := append([]string{l.Name}, l.Innings...)
		row = append(row, l.Runs, l.Hits, l.Errors)
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	tw.Flush()

	state := fmt.Sprintf("Inning %s, %s, %s out", v.Inning, v.Half, v.Outs)
	if !v.ControlsLive {
		state += " (scoreboard unavailable)"
	}
	fmt.Fprintln(w, state)
}

func writeDice(w io.Writer, dice map[string]int) {
	parts := make([]string, 0, len(dugout.DefaultDice))
	for _, d := range dugout.DefaultDice {
		parts = append(parts, d+" "+client.DiceLabel(dice, d))
	}
	fmt.Fprintln(w, "Dice: "+strings.Join(parts, "  "))
}

func writePlacements(w io.Writer, placements []board.Placement) {
	if len(placements) == 0 {
		fmt.Fprintln(w, "No pieces on the board.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PIECE\tWHERE\tIMAGE")
	for _, p := range placements {
		where := p.Container
		if p.Left != "" {
			where = fmt.Sprintf("%s,%s", p.Left, p.Top)
			if p.OnField {
				where += " (field)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.PieceID, where, shorten(p.ImageRef, 48))
	}
	tw.Flush()
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
