// Command replay re-dispatches a recorded action journal against a
// fresh session and checks that the economy lands where the final save
// says it should. It is the out-of-process determinism check: if replay
// diverges, either the engine picked up nondeterminism or the journal
// is incomplete.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	persistlog "towntrade.dev/internal/persistence/log"
	"towntrade.dev/internal/persistence/save"
	"towntrade.dev/internal/sim/catalogs"
	"towntrade.dev/internal/sim/roles"
	"towntrade.dev/internal/sim/session"
	"towntrade.dev/internal/sim/tuning"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		configDir  = flag.String("configs", "./configs", "config directory")
		saveID     = flag.String("save", "", "save id to replay (required)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags)
	if *saveID == "" {
		logger.Fatalf("-save is required")
	}

	roles.RegisterAll()

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	saveDir := filepath.Join(*dataDir, "saves", *saveID)
	latest := save.Latest(saveDir)
	if latest == "" {
		logger.Fatalf("no saves under %s", saveDir)
	}
	final, err := save.Read(latest, tune.HoursPerDay)
	if err != nil {
		logger.Fatalf("read final save: %v", err)
	}

	entries, err := persistlog.ReadAuditDir(filepath.Join(saveDir, "audit"))
	if err != nil {
		logger.Fatalf("read audit journal: %v", err)
	}
	// A restart switches the game to the seed recorded in its journal
	// entry; everything before it belongs to an abandoned playthrough.
	seed, tail := session.ReplayStart(entries, final.RNGSeed)
	logger.Printf("replaying %d of %d actions against role %s (seed %d)",
		len(tail), len(entries), final.RoleKey, seed)

	sess, err := session.New(session.Config{
		ID:       *saveID,
		RoleKey:  final.RoleKey,
		SaveID:   *saveID,
		Seed:     seed,
		Tuning:   tune,
		Catalogs: cats,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("new session: %v", err)
	}

	for _, e := range tail {
		sess.Dispatch(e.Action, e.Input)
	}

	got := sess.ExportSave()
	mismatches := compare(got, final)
	if len(mismatches) == 0 {
		logger.Printf("OK: replay matches %s at hours=%d money=%d",
			filepath.Base(latest), final.Hours, final.Money)
		return
	}
	for _, m := range mismatches {
		logger.Printf("MISMATCH %s", m)
	}
	os.Exit(1)
}

// compare checks the action-driven fields. Wall-clock counters
// (seconds) are excluded: they advance with real ticks, not actions.
func compare(got, want save.SaveV1) []string {
	var out []string
	check := func(name string, g, w any) {
		if g != w {
			out = append(out, fmt.Sprintf("%s: replayed %v, save has %v", name, g, w))
		}
	}
	check("hours", got.Hours, want.Hours)
	check("money", got.Money, want.Money)
	check("debt", got.Debt, want.Debt)
	check("reputation", got.Reputation, want.Reputation)
	check("stage", got.Stage, want.Stage)
	check("rng_state", got.RNGState, want.RNGState)
	check("served", got.Served, want.Served)
	check("good_served", got.GoodServed, want.GoodServed)
	check("bad_served", got.BadServed, want.BadServed)
	check("game_over", got.GameOver, want.GameOver)
	if (got.Item == nil) != (want.Item == nil) {
		out = append(out, "item: presence differs")
	} else if got.Item != nil {
		check("item.stock", got.Item.Stock, want.Item.Stock)
		check("item.price", got.Item.Price, want.Item.Price)
	}
	return out
}
