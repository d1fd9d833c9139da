package mirror

import (
	"fmt"
	"path/filepath"
	"time"

	"trade-mirror-bot/internal/page"
	"trade-mirror-bot/internal/store"
)

// Options are the process-wide knobs applied to every task.
type Options struct {
	Page              page.Options
	AcceptWindow      time.Duration
	CloseMultiplier   float64
	MirrorBoth        bool
	DedupRetention    time.Duration
	PollInterval      time.Duration
	RecoveryBackoff   time.Duration
	SnapshotPath      string
	SnapshotRetention time.Duration
	// Location is the zone the source page renders times in.
	Location *time.Location
}

// OptionsFromConfig derives task options from the loaded config.
func OptionsFromConfig(cfg *store.Config, taskID, link string) Options {
	src := cfg.Source
	return Options{
		Page: page.Options{
			Link: link,
			Selectors: page.Selectors{
				Consent:    src.Selectors.Consent,
				HistoryTab: src.Selectors.HistoryTab,
				Rows:       src.Selectors.Rows,
				NextPage:   src.Selectors.NextPage,
			},
			LookupAttempts: src.LookupAttempts,
			LookupBackoff:  src.LookupBackoff,
			SettleDelay:    src.SettleDelay,
		},
		AcceptWindow:      cfg.Mirror.AcceptWindow,
		CloseMultiplier:   cfg.Mirror.CloseMultiplier,
		MirrorBoth:        cfg.Mirror.MirrorBoth,
		DedupRetention:    cfg.Mirror.DedupRetention,
		PollInterval:      cfg.Mirror.PollInterval,
		RecoveryBackoff:   cfg.Mirror.RecoveryBackoff,
		SnapshotPath:      filepath.Join(cfg.DataDir, fmt.Sprintf("trade_history_%s.json", taskID)),
		SnapshotRetention: cfg.Mirror.SnapshotRetention,
		Location:          time.Local,
	}
}
