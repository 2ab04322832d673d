package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/showdownclub/dugout/internal/board"
	"github.com/showdownclub/dugout/internal/dugout"
	"github.com/showdownclub/dugout/internal/scoreboard"
)

const scoreColumns = dugout.DefaultInnings

func newNewCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a game and print its id and share link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer t.close()

			id, err := t.session.NewGame(cmd.Context())
			if err != nil {
				return err
			}
			u, err := t.session.ShareURL()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "game %s\n%s\n", id, u)
			return nil
		},
	}
}

func newShowCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the scoreboard, dice and pieces of the game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer t.close()
			return t.render(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newRollCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:       "roll <die>",
		Short:     "Roll a d20 and share the result",
		Args:      cobra.ExactArgs(1),
		ValidArgs: dugout.DefaultDice,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer t.close()

			n, err := t.session.RollDice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", args[0], n)
			return nil
		},
	}
}

func newScoreCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "score <action> [away|home]",
		Short: "Apply a scoreboard action: add-run, add-hit, add-error, add-out or next-inning",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			team := ""
			if len(args) == 2 {
				team = args[1]
			}
			action, err := scoreboard.ParseAction(args[0], team)
			if err != nil {
				return err
			}

			t, err := open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer t.close()

			if err := t.session.Score(cmd.Context(), action); err != nil {
				return err
			}
			return t.renderScoreboard(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newPlaceCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "place <slot> <image-file|url>",
		Short: "Put a player image in a slot, uploading local files first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, image := args[0], args[1]

			t, err := open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer t.close()

			var pieceID string
			if isImageRef(image) {
				pieceID, err = t.session.PlaceImage(cmd.Context(), slot, image)
			} else {
				var data []byte
				data, err = os.ReadFile(image)
				if err != nil {
					return fmt.Errorf("reading image: %w", err)
				}
				pieceID, err = t.session.UploadPiece(cmd.Context(), slot, http.DetectContentType(data), data)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "placed %s in %s\n", pieceID, slot)
			return nil
		},
	}
}

func isImageRef(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:")
}

func newDragCmd(cfg *Config) *cobra.Command {
	var (
		toSlot string
		x, y   float64
	)
	cmd := &cobra.Command{
		Use:   "drag <piece-id> (--to-slot SLOT | --x X --y Y)",
		Short: "Move a piece to a slot or to a free position on the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			free := cmd.Flags().Changed("x") || cmd.Flags().Changed("y")
			switch {
			case toSlot != "" && free:
				return fmt.Errorf("use either --to-slot or --x/--y, not both")
			case toSlot == "" && !(cmd.Flags().Changed("x") && cmd.Flags().Changed("y")):
				return fmt.Errorf("give --to-slot, or both --x and --y")
			}

			t, err := open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer t.close()

			var drop board.Drop
			if toSlot != "" {
				drop, err = t.session.DropInSlot(cmd.Context(), args[0], toSlot)
			} else {
				drop, err = t.session.DropAt(cmd.Context(), args[0], x, y)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeDrop(drop))
			return nil
		},
	}
	cmd.Flags().StringVar(&toSlot, "to-slot", "", "slot to drop the piece in")
	cmd.Flags().Float64Var(&x, "x", 0, "board x coordinate of the piece's center")
	cmd.Flags().Float64Var(&y, "y", 0, "board y coordinate of the piece's center")
	return cmd
}

func describeDrop(d board.Drop) string {
	if d.Slot != "" {
		return fmt.Sprintf("%s placed in %s", d.PieceID, d.Slot)
	}
	where := "off the field"
	if d.OnField {
		where = "on the field"
	}
	return fmt.Sprintf("%s dropped at (%s, %s) %s", d.PieceID, dugout.Px(d.X), dugout.Px(d.Y), where)
}

func newWatchCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the game every time another player changes it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := open(ctx, cfg)
			if err != nil {
				return err
			}
			defer t.close()

			out := cmd.OutOrStdout()
			if err := t.render(ctx, out); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case s := <-t.updates:
					fmt.Fprintf(out, "\n-- %s changed --\n", s)
					if err := t.render(ctx, out); err != nil {
						return err
					}
				}
			}
		},
	}
}

func newURLCmd(cfg *Config) *cobra.Command {
	var qr bool
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the link other players open to join the game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.game == "" {
				return errNoGame
			}
			u, err := dugout.ShareURL(cfg.shareBase(), cfg.game)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			if !qr {
				return nil
			}
			code, err := qrcode.New(u, qrcode.Medium)
			if err != nil {
				return fmt.Errorf("encoding qr code: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), code.ToSmallString(false))
			return nil
		},
	}
	cmd.Flags().BoolVar(&qr, "qr", false, "also print the link as a QR code")
	return cmd
}
