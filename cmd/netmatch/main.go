// Command netmatch joins a per-frame analysis CSV against phone and PC
// network logs, producing the merged CSV with nearest-ping columns. It can
// also read its input from a stored run in the results database.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/banshee-data/screenlag/internal/analysis"
	"github.com/banshee-data/screenlag/internal/config"
	"github.com/banshee-data/screenlag/internal/logging"
	"github.com/banshee-data/screenlag/internal/netlog"
	"github.com/banshee-data/screenlag/internal/store"
	"github.com/banshee-data/screenlag/internal/version"
)

func main() {
	var (
		framesPath  = flag.String("frames", "", "per-frame analysis CSV")
		dbPath      = flag.String("db", "", "results database (alternative to -frames)")
		runID       = flag.String("run", "", "run id inside -db")
		phonePath   = flag.String("phone", "", "phone network log CSV (optional)")
		pcPath      = flag.String("pc", "", "PC network log CSV (optional)")
		out         = flag.String("out", "merged.csv", "output CSV path")
		configPath  = flag.String("config", "", "tuning config JSON (optional)")
		verbose     = flag.Bool("v", false, "debug logging")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger := logging.New(os.Stderr, *verbose)

	if err := run(logger, *framesPath, *dbPath, *runID, *phonePath, *pcPath, *out, *configPath); err != nil {
		logger.Error("netmatch failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, framesPath, dbPath, runID, phonePath, pcPath, out, configPath string) error {
	tuning := config.EmptyTuningConfig()
	if configPath != "" {
		loaded, err := config.LoadTuningConfig(configPath)
		if err != nil {
			return err
		}
		tuning = loaded
	}

	records, err := loadRecords(framesPath, dbPath, runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no frame records to match")
	}

	var phoneLog, pcLog []netlog.Entry
	if phonePath != "" {
		if phoneLog, err = netlog.LoadLog(phonePath); err != nil {
			return err
		}
		logger.Info("phone log loaded", "path", phonePath, "entries", len(phoneLog))
	}
	if pcPath != "" {
		if pcLog, err = netlog.LoadLog(pcPath); err != nil {
			return err
		}
		logger.Info("pc log loaded", "path", pcPath, "entries", len(pcLog))
	}
	if phoneLog == nil && pcLog == nil {
		return fmt.Errorf("need at least one of -phone or -pc")
	}

	matcher := netlog.NewMatcher(tuning.MatcherConfig(), logger)
	merged := analysis.MergeNetworkLogs(matcher, records, phoneLog, pcLog)
	if err := analysis.SaveMerged(out, merged); err != nil {
		return err
	}

	var phoneHits, pcHits int
	for _, m := range merged {
		if m.PhoneStatus != netlog.StatusNoData {
			phoneHits++
		}
		if m.PCStatus != netlog.StatusNoData {
			pcHits++
		}
	}
	logger.Info("merged CSV written",
		"path", out,
		"frames", len(merged),
		"phone_matched", phoneHits,
		"pc_matched", pcHits)
	return nil
}

func loadRecords(framesPath, dbPath, runID string) ([]analysis.FrameRecord, error) {
	switch {
	case framesPath != "" && dbPath != "":
		return nil, fmt.Errorf("-frames and -db are mutually exclusive")
	case framesPath != "":
		return analysis.LoadRecords(framesPath)
	case dbPath != "":
		if runID == "" {
			return nil, fmt.Errorf("-db requires -run")
		}
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return store.NewFrameStore(db).Records(runID)
	default:
		return nil, fmt.Errorf("need -frames or -db")
	}
}
