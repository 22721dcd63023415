// Command recompute replays reputation from the vote and acceptance rows and
// repairs any drift in the stored totals.
//
//	recompute -user 42
//	recompute -all
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/database"
	"github.com/emilythestrangee/qa-forum/backend/internal/reputation"
)

func main() {
	userID := flag.Int("user", 0, "recompute a single user id")
	all := flag.Bool("all", false, "recompute every user")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	if (*userID > 0) == *all {
		fmt.Fprintln(os.Stderr, "exactly one of -user or -all is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*userID, *timeout); err != nil {
		slog.Error("recompute failed", "error", err)
		os.Exit(1)
	}
}

func run(userID int, timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.New(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := reputation.New(
		database.NewLedgerStore(db.GetDB(), cfg.DB.LockTimeout),
		cfg.Reputation.Rules(),
		reputation.WithTxTimeout(cfg.Reputation.TxTimeout),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var outcomes []reputation.RecomputeOutcome
	if userID > 0 {
		out, err := engine.Recompute(ctx, userID)
		if err != nil {
			return err
		}
		outcomes = append(outcomes, out)
	} else {
		outcomes, err = engine.RecomputeAll(ctx)
		if err != nil {
			return fmt.Errorf("after %d users: %w", len(outcomes), err)
		}
	}

	repaired := 0
	for _, out := range outcomes {
		if out.Previous != out.Reputation {
			repaired++
			fmt.Printf("user %d: %d -> %d\n", out.UserID, out.Previous, out.Reputation)
		}
	}
	fmt.Printf("checked %d users, repaired %d\n", len(outcomes), repaired)
	return nil
}
