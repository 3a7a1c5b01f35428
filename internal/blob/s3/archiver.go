package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
)

// archiveBatchSize caps how many attempts one export run pulls from the
// journal.
const archiveBatchSize = 1_000

// Archiver exports terminal execution attempts older than the retention
// cutoff to object storage as JSONL, one object per run, keyed by date.
//
// Deletion of archived rows from the primary store is intentionally not
// performed here; that is a separate, explicit step after the archive has
// been verified.
type Archiver struct {
	writer domain.BlobWriter
	store  domain.AttemptStore
	// retention is how long attempts stay in the primary journal before
	// becoming eligible for export.
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver over the given store and blob writer.
func NewArchiver(writer domain.BlobWriter, store domain.AttemptStore, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		store:     store,
		retention: retention,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run exports one batch of attempts finished before now minus retention.
// It returns the number of attempts exported; zero with a nil error means
// nothing was eligible.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.retention)
	attempts, err := a.store.ListTerminalBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list attempts for archive: %w", err)
	}
	if len(attempts) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, attempt := range attempts {
		if err := enc.Encode(attempt); err != nil {
			return 0, fmt.Errorf("s3blob: encode attempt %s: %w", attempt.ID, err)
		}
	}

	key := archiveKey(time.Now().UTC())
	if err := a.writer.Write(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, err
	}

	a.logger.Info("attempt archive exported",
		slog.String("key", key),
		slog.Int("attempts", len(attempts)),
		slog.Time("cutoff", cutoff))
	return len(attempts), nil
}

// archiveKey builds a date-partitioned object key so exports are easy to
// locate and list by day.
func archiveKey(now time.Time) string {
	return fmt.Sprintf("attempts/%s/attempts-%s.jsonl",
		now.Format("2006/01/02"), now.Format("20060102T150405Z"))
}
