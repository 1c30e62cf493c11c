package tts

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

// DuckController lowers background outputs while an announcement plays and
// puts them back afterwards. Failures on one target never affect others.
type DuckController struct {
	out    ttypes.Output
	logger *log.Logger

	mu sync.Mutex
	// Original volume per ducked target; nil means it could not be read.
	saved map[string]*float64
}

// NewDuckController creates a controller that acts through out.
func NewDuckController(out ttypes.Output, logger *log.Logger) *DuckController {
	if logger == nil {
		logger = log.Default()
	}
	return &DuckController{
		out:    out,
		logger: logger,
		saved:  make(map[string]*float64),
	}
}

// Duck sets every active target except exclude to level, remembering the
// previous volume. Targets already ducked keep their first recorded volume.
// It returns the number of targets lowered.
func (d *DuckController) Duck(ctx context.Context, targets []string, exclude string, level float64) int {
	level = ClampVolume(level)
	ducked := 0

	for _, target := range targets {
		if target == "" || target == exclude {
			continue
		}
		if err := ctx.Err(); err != nil {
			return ducked
		}

		d.mu.Lock()
		_, already := d.saved[target]
		d.mu.Unlock()
		if already {
			continue
		}

		status, err := d.out.ReadState(ctx, target)
		if err != nil {
			d.logger.Warn("duck: cannot read target state", "target", target, "err", err)
			continue
		}
		if !status.State.IsActive() {
			continue
		}

		if err := d.out.SetVolume(ctx, target, level); err != nil {
			d.logger.Warn("duck: cannot lower volume", "target", target, "err", err)
			continue
		}

		d.mu.Lock()
		d.saved[target] = status.Volume
		d.mu.Unlock()
		ducked++

		if status.Volume == nil {
			d.logger.Debug("duck: original volume unknown, will not restore", "target", target)
		} else {
			d.logger.Debug("ducked", "target", target, "from", *status.Volume, "to", level)
		}
	}

	return ducked
}

// Restore sets each ducked target back to its recorded volume and forgets
// the record. Targets with an unknown original volume are left alone.
// Calling Restore with nothing ducked is a no-op.
func (d *DuckController) Restore(ctx context.Context) int {
	d.mu.Lock()
	saved := d.saved
	d.saved = make(map[string]*float64)
	d.mu.Unlock()

	restored := 0
	for target, vol := range saved {
		if vol == nil {
			continue
		}
		if err := d.out.SetVolume(ctx, target, *vol); err != nil {
			d.logger.Warn("restore: cannot reset volume", "target", target, "volume", *vol, "err", err)
			continue
		}
		restored++
	}
	return restored
}

// Active reports whether any target is currently ducked.
func (d *DuckController) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.saved) > 0
}

// Ducked returns the currently ducked targets.
func (d *DuckController) Ducked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, 0, len(d.saved))
	for t := range d.saved {
		out = append(out, t)
	}
	return out
}
