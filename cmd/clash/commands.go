package main

import (
	"fmt"
	"io"

	"github.com/jason-s-yu/cardclash/internal/battle"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newPlayCmd(g *globalFlags, logger *logrus.Logger) *cobra.Command {
	var (
		roomID string
		create string
		cards  string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Find an opponent, submit a hand and settle the battle",
		Example: `  clash play --cards a1:30,b2:12
  clash play --create ranked --cards a1:30
  clash play --room K7PX2M --cards a1:30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID != "" && create != "" {
				return fmt.Errorf("--room and --create are exclusive")
			}
			hand, err := parseHand(cards)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := login(ctx, g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			sess := newSession(c, logger)
			sess.OnRoom = func(r *models.Room) {
				if r != nil {
					logger.WithField("room", r.ID).Debugf("room is %s", r.Status)
				}
			}

			switch {
			case create != "":
				roomID, err = c.CreateRoom(ctx, models.Mode(create))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "room %s created, share the code with your opponent\n", roomID)
			case roomID != "":
				if _, err := c.JoinRoom(ctx, roomID); err != nil {
					return err
				}
				fmt.Fprintf(out, "joined room %s\n", roomID)
			default:
				fmt.Fprintln(out, "searching for an opponent...")
				roomID, err = sess.FindOpponent(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "matched into room %s\n", roomID)
			}

			outcome, err := sess.Play(ctx, roomID, hand)
			sess.Controller().Wait()
			if outcome.RoomID != "" {
				printOutcome(out, outcome)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&roomID, "room", "", "join the room with this code")
	cmd.Flags().StringVar(&create, "create", "", "create a room of this mode (ranked or casual)")
	cmd.Flags().StringVar(&cards, "cards", "", "hand as id:power pairs separated by commas")
	_ = cmd.MarkFlagRequired("cards")
	return cmd
}

func printOutcome(w io.Writer, o battle.Outcome) {
	mine, theirs := o.HostPower, o.GuestPower
	if o.Side == models.SideGuest {
		mine, theirs = theirs, mine
	}
	verdict := "you lost"
	switch {
	case o.Tie():
		verdict = "tie"
	case o.Won():
		verdict = "you won"
	}
	fmt.Fprintf(w, "%s: %d vs %d against %s\n", verdict, mine, theirs, o.Opponent)
	if o.Err != nil {
		fmt.Fprintf(w, "settlement: %v\n", o.Err)
	}
}

func newAccountCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show coins and rating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := login(cmd.Context(), g)
			if err != nil {
				return err
			}
			a, err := c.Account(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\ncoins  %d\nrating %d (phi %.1f)\n", a.Address, a.Coins, a.Elo, a.Phi)
			return nil
		},
	}
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent battles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := login(cmd.Context(), g)
			if err != nil {
				return err
			}
			results, err := c.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				verdict := "L"
				switch {
				case r.Winner == models.SideTie:
					verdict = "T"
				case r.Won():
					verdict = "W"
				}
				fmt.Fprintf(out, "%s  %s  %-6s  %3d-%-3d  %s\n",
					r.ResolvedAt.Format("2006-01-02 15:04"), verdict, r.Mode, r.PlayerPower, r.OppPower, r.Opponent)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "how many results to show")
	return cmd
}

func newCancelCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Leave the matchmaking queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := login(cmd.Context(), g)
			if err != nil {
				return err
			}
			return c.CancelMatchmaking(cmd.Context())
		},
	}
}
