// backtest replays a history of settled bets and compares staking
// strategies on final bankroll, win rate, and drawdown.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/oddsforge/betengine/pkg/backtest"
	"github.com/oddsforge/betengine/pkg/engine/staking"
)

var (
	recordsPath   = flag.String("records", "", "Path to JSON bet records (required)")
	balance       = flag.Float64("balance", 10000, "Initial bankroll")
	kellyFraction = flag.Float64("kelly-fraction", 0.25, "Fraction of full Kelly")
	maxStakeFrac  = flag.Float64("max-stake", 0.05, "Max stake as fraction of bankroll")
	strategyList  = flag.String("strategies", "flat,kelly,cvar,geometric,dynamic", "Comma-separated strategies to run")
	jsonOut       = flag.Bool("json", false, "Emit results as JSON")
)

func main() {
	flag.Parse()
	if *recordsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -records bets.json [-balance 10000]")
		os.Exit(2)
	}

	records, err := backtest.LoadRecords(*recordsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load records: %v\n", err)
		os.Exit(1)
	}

	sizer := staking.NewSizer(staking.Config{
		KellyFraction:    *kellyFraction,
		MaxStakeFraction: *maxStakeFrac,
	})

	var strategies []backtest.Strategy
	for _, name := range strings.Split(*strategyList, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case "flat":
			strategies = append(strategies, backtest.NewFlatStrategy(0.01, *balance))
		case "kelly", "cvar", "geometric", "dynamic":
			strategies = append(strategies, backtest.NewSizerStrategy(name, sizer))
		case "":
		default:
			fmt.Fprintf(os.Stderr, "unknown strategy %q\n", name)
			os.Exit(2)
		}
	}

	results := backtest.RunAll(strategies, records, *balance)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "encode results: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Replayed %d records, initial bankroll %.2f\n\n", len(records), *balance)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tFINAL\tRETURN\tBETS\tSKIPPED\tWIN RATE\tMAX DD")
	for _, r := range results {
		final, _ := r.FinalBalance.Float64()
		fmt.Fprintf(w, "%s\t%.2f\t%+.2f%%\t%d\t%d\t%.1f%%\t%.1f%%\n",
			r.Strategy, final, r.TotalReturn*100,
			r.TotalBets, r.SkippedBets, r.WinRate*100, r.MaxDrawdown*100)
	}
	w.Flush()
}
