// Package history persists immutable snapshots of committed
// configuration state and supports listing, diffing and rollback.
//
// Snapshots form an append-only sequence in SQLite: strictly increasing,
// contiguous sequence numbers, one row per commit, never mutated. A gap
// detected on read reports corruption and fails history-dependent
// operations, but never blocks fresh commits — a truncated history
// restarts from the highest intact sequence number.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/confman-io/confman/internal/configtree"
	"github.com/confman-io/confman/internal/infrastructure/database"
	"github.com/confman-io/confman/internal/infrastructure/logging"
	"github.com/confman-io/confman/internal/vault"
)

// Snapshot is one immutable record of committed configuration state.
// Tree is populated by Get and Rollback; listing returns metadata only.
type Snapshot struct {
	Seq       int64             `json:"seq"`
	ID        string            `json:"id"`
	Hash      string            `json:"hash"`
	Author    string            `json:"author,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Tree      *configtree.Value `json:"-"`
}

// Filter controls which snapshots List returns.
type Filter struct {
	Limit  int // default 50, max 200
	Offset int // pagination offset
}

// ListResult contains paginated snapshot metadata, newest first.
type ListResult struct {
	Snapshots []Snapshot `json:"snapshots"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

// ErrNotFound reports a sequence number with no snapshot.
var ErrNotFound = errors.New("snapshot not found")

// CorruptionError reports a history whose invariants do not hold: a gap
// in the sequence or a snapshot whose stored tree no longer matches its
// recorded content hash. It is fatal for history-dependent reads but
// does not prevent new commits.
type CorruptionError struct {
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("history corrupted: %s", e.Detail)
}

// Store reads and writes snapshots in SQLite.
type Store struct {
	db      *database.DB
	log     *logging.Logger
	markers *vault.Markers
}

// NewStore creates a snapshot store. The markers identify sensitive
// fields, which diff output never shows in plaintext.
func NewStore(db *database.DB, log *logging.Logger, markers *vault.Markers) *Store {
	return &Store{db: db, log: log.With("component", "history"), markers: markers}
}

// Commit appends a new snapshot of the given resolved tree.
//
// The caller is responsible for only committing validated trees (the
// pipeline enforces this); the store's own job is atomicity: the
// sequence number is allocated and the row written in one transaction,
// so concurrent committers cannot produce gaps or duplicates and a
// failed commit leaves no partial record.
func (s *Store) Commit(ctx context.Context, tree *configtree.Value, author string) (*Snapshot, error) {
	if tree == nil || tree.Kind() != configtree.KindMapping {
		return nil, fmt.Errorf("committed tree root must be a mapping")
	}
	// A non-finite number has no canonical encoding, so the stored row
	// could never be read back. Refuse it instead of corrupting history.
	if path := configtree.NonFinite(tree); path != "" {
		return nil, fmt.Errorf("field %s: non-finite numbers cannot be stored", path)
	}

	snap := &Snapshot{
		ID:        "snap-" + uuid.NewString()[:8],
		Hash:      configtree.Hash(tree),
		Author:    author,
		CreatedAt: time.Now().UTC(),
		Tree:      tree,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM config_snapshots",
	).Scan(&snap.Seq); err != nil {
		return nil, fmt.Errorf("allocating sequence number: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO config_snapshots (seq, id, hash, author, tree, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Seq, snap.ID, snap.Hash,
		nullableString(author),
		string(configtree.MarshalCanonical(tree)),
		snap.CreatedAt.Format(time.RFC3339),
	); err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing snapshot: %w", err)
	}

	s.log.Info("snapshot committed", "seq", snap.Seq, "hash", snap.Hash, "author", author)
	return snap, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// List returns snapshot metadata matching the filter, newest first.
// Repeated calls with increasing offsets walk the full history.
func (s *Store) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if err := s.Verify(ctx); err != nil {
		return nil, err
	}

	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for history queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM config_snapshots",
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting snapshots: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, hash, author, created_at FROM config_snapshots
		 ORDER BY seq DESC LIMIT ? OFFSET ?`,
		filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan, false)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}

	if snaps == nil {
		snaps = []Snapshot{}
	}

	return &ListResult{
		Snapshots: snaps,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}, nil
}

// Get returns one snapshot with its full tree. The stored tree is
// re-hashed on read; a mismatch against the recorded hash reports
// corruption rather than returning silently altered state.
func (s *Store) Get(ctx context.Context, seq int64) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT seq, id, hash, author, tree, created_at FROM config_snapshots WHERE seq = ?`,
		seq,
	)

	snap, err := scanSnapshot(row.Scan, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %d: %w", seq, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if got := configtree.Hash(snap.Tree); got != snap.Hash {
		return nil, &CorruptionError{
			Detail: fmt.Sprintf("snapshot %d content hash mismatch (recorded %s, computed %s)",
				seq, snap.Hash, got),
		}
	}
	return snap, nil
}

// scanSnapshot scans one snapshot row. With tree set, the row must also
// select the tree column, which is parsed back into a canonical tree.
func scanSnapshot(scan func(...any) error, tree bool) (*Snapshot, error) {
	var snap Snapshot
	var author sql.NullString
	var createdAt string
	var treeText string

	var err error
	if tree {
		err = scan(&snap.Seq, &snap.ID, &snap.Hash, &author, &treeText, &createdAt)
	} else {
		err = scan(&snap.Seq, &snap.ID, &snap.Hash, &author, &createdAt)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}

	if author.Valid {
		snap.Author = author.String
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot timestamp %q: %w", createdAt, err)
	}
	snap.CreatedAt = t

	if tree {
		v, err := configtree.UnmarshalCanonical([]byte(treeText))
		if err != nil {
			return nil, &CorruptionError{
				Detail: fmt.Sprintf("snapshot %d tree unreadable: %v", snap.Seq, err),
			}
		}
		snap.Tree = v
	}
	return &snap, nil
}

// Rollback returns the exact tree of the given snapshot. It does not
// commit anything: making the rolled-back state durable is a separate,
// explicit commit, so a rollback can be inspected first.
func (s *Store) Rollback(ctx context.Context, seq int64) (*configtree.Value, error) {
	snap, err := s.Get(ctx, seq)
	if err != nil {
		return nil, err
	}
	return snap.Tree, nil
}

// Verify checks the sequence invariant: strictly increasing and
// contiguous. Called before history-dependent reads; commits never call
// it, so a corrupted history can still accept new snapshots.
func (s *Store) Verify(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq FROM config_snapshots ORDER BY seq",
	)
	if err != nil {
		return fmt.Errorf("querying sequence numbers: %w", err)
	}
	defer rows.Close()

	var prev int64
	first := true
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return fmt.Errorf("scanning sequence number: %w", err)
		}
		if !first && seq != prev+1 {
			return &CorruptionError{
				Detail: fmt.Sprintf("sequence gap between %d and %d", prev, seq),
			}
		}
		prev = seq
		first = false
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating sequence numbers: %w", err)
	}
	return nil
}

// Prune permanently deletes every snapshot older than the given
// sequence number. This is the only operation that removes history, and
// it is always logged.
func (s *Store) Prune(ctx context.Context, keepFrom int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM config_snapshots WHERE seq < ?", keepFrom,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned snapshots: %w", err)
	}
	s.log.Warn("history pruned", "keep_from", keepFrom, "deleted", n)
	return n, nil
}
