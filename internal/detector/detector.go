// Package detector tracks which documents arrived after the initial
// corpus snapshot, so unresolved queries can be retried against them.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/korpuslab/zapytaj/internal/memory"
	"github.com/korpuslab/zapytaj/internal/metrics"
	"github.com/korpuslab/zapytaj/internal/models"
)

// Index is the slice of the lexical index the detector needs: a full
// id scan and single-document fetches.
type Index interface {
	ScrollIDs(ctx context.Context) (map[uint64]struct{}, error)
	Get(ctx context.Context, id uint64) (*models.Document, error)
}

// DocPreview is a new document reduced to its matchable metadata and
// a short text preview.
type DocPreview struct {
	ID       uint64   `json:"id"`
	Entities []string `json:"entities"`
	Places   []string `json:"places"`
	Years    []int    `json:"years"`
	Text     string   `json:"text"`
}

// Stats reports the snapshot size and how many documents arrived
// since.
type Stats struct {
	InitialDocuments int `json:"initial_documents"`
	NewDocuments     int `json:"new_documents"`
}

type snapshot struct {
	DocIDs    []uint64 `json:"doc_ids"`
	Timestamp string   `json:"timestamp"`
}

// previewLen caps the text carried in a DocPreview.
const previewLen = 200

// Detector owns the snapshot file. The snapshot is written only at
// construction and on explicit reset.
type Detector struct {
	index Index
	path  string
	log   *zap.Logger

	initial map[uint64]struct{}
}

// New loads the snapshot from path, or takes one by scrolling the
// index when the file does not exist.
func New(ctx context.Context, index Index, path string, logger *zap.Logger) (*Detector, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	d := &Detector{index: index, path: path, log: logger, initial: make(map[uint64]struct{})}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := d.takeSnapshot(ctx); err != nil {
			return nil, err
		}
		logger.Info("Initial corpus snapshot taken",
			zap.Int("documents", len(d.initial)))
	case err != nil:
		return nil, fmt.Errorf("read snapshot: %w", err)
	default:
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse snapshot: %w", err)
		}
		for _, id := range snap.DocIDs {
			d.initial[id] = struct{}{}
		}
		logger.Info("Corpus snapshot loaded",
			zap.Int("documents", len(d.initial)),
			zap.String("taken", snap.Timestamp))
	}
	return d, nil
}

// NewDocuments scans the index and returns previews of every document
// absent from the initial snapshot.
func (d *Detector) NewDocuments(ctx context.Context) ([]DocPreview, error) {
	current, err := d.index.ScrollIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("scroll index: %w", err)
	}

	var newIDs []uint64
	for id := range current {
		if _, ok := d.initial[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}
	sort.Slice(newIDs, func(i, j int) bool { return newIDs[i] < newIDs[j] })
	metrics.DetectorNewDocuments.Set(float64(len(newIDs)))
	if len(newIDs) == 0 {
		return nil, nil
	}

	previews := make([]DocPreview, 0, len(newIDs))
	for _, id := range newIDs {
		doc, err := d.index.Get(ctx, id)
		if err != nil {
			d.log.Warn("Skipping unfetchable new document",
				zap.Uint64("id", id), zap.Error(err))
			continue
		}
		text := doc.Text
		if len(text) > previewLen {
			text = text[:previewLen]
		}
		previews = append(previews, DocPreview{
			ID:       id,
			Entities: doc.Entities,
			Places:   doc.Places,
			Years:    doc.Years,
			Text:     text,
		})
	}
	d.log.Info("New documents detected", zap.Int("count", len(previews)))
	return previews, nil
}

// ResetInitialState rescans the index and overwrites the snapshot.
func (d *Detector) ResetInitialState(ctx context.Context) error {
	if err := d.takeSnapshot(ctx); err != nil {
		return err
	}
	d.log.Info("Corpus snapshot reset", zap.Int("documents", len(d.initial)))
	return nil
}

// Stats scans the index and reports snapshot vs current counts.
func (d *Detector) Stats(ctx context.Context) (Stats, error) {
	current, err := d.index.ScrollIDs(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("scroll index: %w", err)
	}
	st := Stats{InitialDocuments: len(d.initial)}
	for id := range current {
		if _, ok := d.initial[id]; !ok {
			st.NewDocuments++
		}
	}
	metrics.DetectorNewDocuments.Set(float64(st.NewDocuments))
	return st, nil
}

func (d *Detector) takeSnapshot(ctx context.Context) error {
	ids, err := d.index.ScrollIDs(ctx)
	if err != nil {
		return fmt.Errorf("scroll index: %w", err)
	}
	d.initial = ids

	sorted := make([]uint64, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	snap := snapshot{DocIDs: sorted, Timestamp: time.Now().Format(time.RFC3339)}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// MatchQuery reports whether any new document shares an entity,
// place, or year with the entry's hints, and which document ids
// matched.
func MatchQuery(entry memory.Entry, docs []DocPreview) (bool, []uint64) {
	entities := toSet(entry.EntitiesHint)
	places := toSet(entry.PlacesHint)
	years := make(map[int]struct{}, len(entry.YearsHint))
	for _, y := range entry.YearsHint {
		years[y] = struct{}{}
	}

	var matched []uint64
	for _, doc := range docs {
		if intersects(entities, doc.Entities) ||
			intersects(places, doc.Places) ||
			intersectsInts(years, doc.Years) {
			matched = append(matched, doc.ID)
		}
	}
	return len(matched) > 0, matched
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func intersects(set map[string]struct{}, values []string) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func intersectsInts(set map[int]struct{}, values []int) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
