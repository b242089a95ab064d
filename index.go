// Package loom is an embedded full-text search library: it maintains
// an on-disk inverted index over a user-declared schema of typed
// fields, supports incremental indexing with soft deletes and
// background merging, and evaluates structured boolean/phrase/range
// queries against that index with pluggable scoring.
//
// The Index type at this level is thin glue: Create writes the first
// (empty) generation, Open resolves the latest one, Writer hands out
// the single-writer mutation handle, and Reader opens a snapshot for
// searching. All of the machinery lives in the subpackages.
package loom

import (
	"context"
	"fmt"
	"time"

	"github.com/jpl-au/loom/errs"
	"github.com/jpl-au/loom/reading"
	"github.com/jpl-au/loom/schema"
	"github.com/jpl-au/loom/searching"
	"github.com/jpl-au/loom/storage"
	"github.com/jpl-au/loom/toc"
	"github.com/jpl-au/loom/writing"
)

// Config tunes an Index. The zero value selects sensible defaults.
type Config struct {
	// PoolBudget is the writer pool's in-RAM byte budget before it
	// spills a sorted run to a temp file. 0 means 32 MiB.
	PoolBudget int

	// LockTimeout bounds how long Writer blocks acquiring WRITELOCK
	// when the caller's context has no deadline of its own. 0 means
	// 10 seconds.
	LockTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PoolBudget == 0 {
		c.PoolBudget = 32 << 20
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 10 * time.Second
	}
	return c
}

// Index is a handle on one named index inside a Storage. It holds no
// open files itself; Reader and Writer each open what they need.
type Index struct {
	st   storage.Storage
	name string
	cfg  Config
}

// Create initializes a new index named name in st by publishing an
// empty generation-0 TOC carrying sch. It fails with
// errs.ErrAlreadyExists if any generation already exists.
func Create(st storage.Storage, name string, sch *schema.Schema, cfg Config) (*Index, error) {
	if !toc.ValidIndexName(name) {
		return nil, fmt.Errorf("loom: create %q: %w", name, errs.FieldConfigurationError)
	}
	gen, err := toc.LatestGeneration(st, name)
	if err != nil {
		return nil, err
	}
	if gen >= 0 {
		return nil, fmt.Errorf("loom: create %q: %w", name, errs.ErrAlreadyExists)
	}
	t := &toc.TOC{Generation: 0, SegmentCounter: 0, Schema: sch}
	if err := toc.Write(st, name, t, time.Now()); err != nil {
		return nil, err
	}
	return &Index{st: st, name: name, cfg: cfg.withDefaults()}, nil
}

// Open resolves an existing index named name in st, failing with
// errs.EmptyIndexError when no TOC is present.
func Open(st storage.Storage, name string, cfg Config) (*Index, error) {
	gen, err := toc.LatestGeneration(st, name)
	if err != nil {
		return nil, err
	}
	if gen < 0 {
		return nil, fmt.Errorf("loom: open %q: %w", name, errs.EmptyIndexError)
	}
	// Validate the TOC eagerly so version/corruption errors surface at
	// open rather than on first read.
	if _, err := toc.Read(st, name, gen); err != nil {
		return nil, err
	}
	return &Index{st: st, name: name, cfg: cfg.withDefaults()}, nil
}

// Exists reports whether an index named name has at least one
// committed generation in st.
func Exists(st storage.Storage, name string) (bool, error) {
	gen, err := toc.LatestGeneration(st, name)
	if err != nil {
		return false, err
	}
	return gen >= 0, nil
}

// Name returns the index name.
func (ix *Index) Name() string { return ix.name }

// Storage returns the underlying storage handle.
func (ix *Index) Storage() storage.Storage { return ix.st }

// LatestGeneration returns the highest committed generation, or -1.
func (ix *Index) LatestGeneration() (int, error) {
	return toc.LatestGeneration(ix.st, ix.name)
}

// Schema returns the schema snapshot of the latest generation.
func (ix *Index) Schema() (*schema.Schema, error) {
	t, err := ix.latestTOC()
	if err != nil {
		return nil, err
	}
	return t.Schema, nil
}

// DocCount returns the latest generation's live document count.
func (ix *Index) DocCount() (int, error) {
	t, err := ix.latestTOC()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, seg := range t.Segments {
		n += seg.DocCount()
	}
	return n, nil
}

func (ix *Index) latestTOC() (*toc.TOC, error) {
	gen, err := toc.LatestGeneration(ix.st, ix.name)
	if err != nil {
		return nil, err
	}
	if gen < 0 {
		return nil, fmt.Errorf("loom: %q: %w", ix.name, errs.EmptyIndexError)
	}
	return toc.Read(ix.st, ix.name, gen)
}

// Reader opens a read-only snapshot of the latest generation,
// briefly holding READLOCK while the TOC is resolved and segment
// files are opened. A single-segment generation returns a
// SegmentReader directly; otherwise a MultiReader fans out over the
// set, with each child opened at generation -2 so only the outer
// reader publishes a generation.
func (ix *Index) Reader(ctx context.Context) (reading.Reader, error) {
	rlock, err := ix.st.Lock(fmt.Sprintf("_%s.readlock", ix.name))
	if err != nil {
		return nil, fmt.Errorf("loom: reader lock: %w", err)
	}
	lctx, cancel := context.WithTimeout(ctx, ix.cfg.LockTimeout)
	defer cancel()
	if err := rlock.Lock(lctx); err != nil {
		return nil, fmt.Errorf("loom: acquire READLOCK: %w", errs.LockError)
	}
	defer rlock.Unlock()

	t, err := ix.latestTOC()
	if err != nil {
		return nil, err
	}
	if len(t.Segments) == 1 {
		return reading.OpenSegment(ix.st, t.Schema, t.Segments[0], t.Generation)
	}
	return reading.OpenMulti(ix.st, t.Schema, t.Segments)
}

// Writer acquires WRITELOCK and returns the index's single mutation
// handle. If ctx carries no deadline, the configured LockTimeout is
// applied.
func (ix *Index) Writer(ctx context.Context) (*writing.SegmentWriter, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.cfg.LockTimeout)
		defer cancel()
	}
	return writing.Open(ctx, ix.st, ix.name, nil, ix.cfg.PoolBudget)
}

// Searcher opens a reader snapshot and wraps it in a Searcher. A nil
// weighting selects BM25 defaults. The caller owns the reader via
// Searcher.Reader().Close().
func (ix *Index) Searcher(ctx context.Context, w searching.Weighting) (*searching.Searcher, error) {
	r, err := ix.Reader(ctx)
	if err != nil {
		return nil, err
	}
	return searching.New(r, w), nil
}
