package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// OpportunityArchiveStore is the slice of the opportunity store the archiver
// needs.
type OpportunityArchiveStore interface {
	// ListBefore returns opportunities detected strictly before the cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error)
}

// OpportunityPruner removes archived rows from the primary store.
type OpportunityPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver by serializing old opportunities to
// JSONL under archive/arb_opportunities/YYYY-MM.jsonl, one file per month of
// detection. An existing month file is extended, skipping ids it already
// holds, so a run retried after a failed prune writes no duplicates. Rows are
// pruned from the store only when a pruner is set and every upload and the
// audit entry succeeded.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	opps   OpportunityArchiveStore
	pruner OpportunityPruner
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl. pruner may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	opps OpportunityArchiveStore,
	pruner OpportunityPruner,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		opps:   opps,
		pruner: pruner,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveOpportunities archives every opportunity detected before the cutoff
// and returns how many rows were newly written.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	byPath := make(map[string][]domain.ArbitrageOpportunity)
	for _, o := range opps {
		path := archivePath("arb_opportunities", o.DetectedAt)
		byPath[path] = append(byPath[path], o)
	}
	paths := slices.Sorted(maps.Keys(byPath))

	var count int64
	var written []string
	for _, path := range paths {
		n, err := a.appendMonth(ctx, path, byPath[path])
		if err != nil {
			return count, fmt.Errorf("s3blob: archive opportunities %s: %w", path, err)
		}
		if n > 0 {
			count += n
			written = append(written, path)
		}
	}

	if count > 0 {
		if err := a.audit.Log(ctx, domain.AuditArchived, map[string]any{
			"paths":  written,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive opportunities audit log: %w", err)
		}
	}

	if a.pruner != nil {
		pruned, err := a.pruner.DeleteBefore(ctx, before)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive opportunities prune: %w", err)
		}
		a.logger.Info("pruned archived opportunities", slog.Int64("rows", pruned))
	}

	a.logger.Info("archived opportunities",
		slog.Any("paths", written),
		slog.Int64("count", count),
	)
	return count, nil
}

// appendMonth adds the rows not yet in the month file at path and uploads
// the result. It returns how many rows were added.
func (a *ArchiveImpl) appendMonth(ctx context.Context, path string, opps []domain.ArbitrageOpportunity) (int64, error) {
	existing, err := a.existing(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	seen := a.archivedIDs(path, existing)

	fresh := make([]domain.ArbitrageOpportunity, 0, len(opps))
	for _, o := range opps {
		if o.ID != "" && seen[o.ID] {
			continue
		}
		fresh = append(fresh, o)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(fresh)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		existing = append(existing, '\n')
	}
	payload := append(existing, buf...)

	if int64(len(payload)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(payload), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(payload), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	return int64(len(fresh)), nil
}

// archivedIDs collects the ids already present in a month file. Lines that
// do not decode are kept in the file but cannot be matched.
func (a *ArchiveImpl) archivedIDs(path string, data []byte) map[string]bool {
	seen := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var row struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			a.logger.Warn("undecodable archive line",
				slog.String("path", path),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}
		if row.ID != "" {
			seen[row.ID] = true
		}
	}
	if err := sc.Err(); err != nil {
		a.logger.Warn("archive scan stopped early", slog.String("path", path), slog.String("error", err.Error()))
	}
	return seen
}

// existing returns the current content of path, or nil when it does not exist.
func (a *ArchiveImpl) existing(ctx context.Context, path string) ([]byte, error) {
	if a.reader == nil {
		return nil, nil
	}
	rc, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// archivePath builds the S3 key for an archive file, partitioned by the
// UTC year-month of t.
//
//	archive/arb_opportunities/2025-01.jsonl
func archivePath(kind string, t time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, t.UTC().Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
