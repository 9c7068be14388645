// Package export writes a session's rewards as CSV.
//
// Rows are oldest-first followed by a TOTAL summary row. Files are written
// to a temporary sibling and moved into place, so a failed export leaves any
// earlier file untouched.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/pkg/logger"
	"github.com/okian/smileboard/pkg/metrics"
)

// Header is the first CSV row.
var Header = []string{"timestamp", "points", "confidence_percent", "streak"}

// TotalLabel prefixes the summary row.
const TotalLabel = "TOTAL"

// Record is the data exported for one user.
type Record struct {
	User string
	// Entries are most-recent-first, as held by the ledger.
	Entries []model.RewardEntry
	Score   model.ScoreState
}

// DefaultFileName returns smile_data_<user>.csv with path separators replaced.
func DefaultFileName(user string) string {
	if user == "" {
		user = model.DefaultUser
	}
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, user)
	return "smile_data_" + safe + ".csv"
}

// Exporter writes Records to files.
type Exporter struct {
	log logger.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an Exporter.
func New(opts ...Option) *Exporter {
	e := &Exporter{log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes rec to dest. An existing dest is replaced only when
// overwrite is set; otherwise ErrExists is returned.
func (e *Exporter) Export(ctx context.Context, dest string, rec Record, overwrite bool) (err error) {
	defer func() {
		result := "ok"
		switch {
		case errors.Is(err, ErrExists):
			result = "exists"
		case err != nil:
			result = "error"
		}
		metrics.RecordExport(result)
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if !overwrite {
		if _, statErr := os.Stat(dest); statErr == nil {
			return fmt.Errorf("%w: %s", ErrExists, dest)
		}
	}

	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", ErrIO, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := WriteTo(tmp, rec); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: sync: %w", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}

	if overwrite {
		if err := os.Rename(tmpPath, dest); err != nil {
			return fmt.Errorf("%w: rename: %w", ErrIO, err)
		}
	} else {
		// Link fails if dest appeared since the Stat above.
		if err := os.Link(tmpPath, dest); err != nil {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%w: %s", ErrExists, dest)
			}
			return fmt.Errorf("%w: link: %w", ErrIO, err)
		}
		_ = os.Remove(tmpPath)
	}

	e.log.Info(ctx, "rewards exported",
		logger.String("path", dest),
		logger.String("user", rec.User),
		logger.Int("rows", len(rec.Entries)),
	)
	return nil
}

// WriteTo writes the CSV rows of rec to w.
func WriteTo(w io.Writer, rec Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	for i := len(rec.Entries) - 1; i >= 0; i-- {
		if err := cw.Write(row(rec.Entries[i])); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}
	total := []string{TotalLabel, strconv.Itoa(rec.Score.TotalScore), "", strconv.Itoa(rec.Score.CurrentStreak)}
	if err := cw.Write(total); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

func row(e model.RewardEntry) []string {
	return []string{
		e.Timestamp.Format(time.RFC3339),
		strconv.Itoa(e.Points),
		strconv.FormatFloat(e.ConfidencePercent, 'f', 1, 64),
		strconv.Itoa(e.Streak),
	}
}
