package history

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/confman-io/confman/internal/configtree"
	"github.com/confman-io/confman/internal/infrastructure/config"
	"github.com/confman-io/confman/internal/infrastructure/database"
	"github.com/confman-io/confman/internal/infrastructure/logging"
	"github.com/confman-io/confman/internal/vault"

	_ "github.com/confman-io/confman/migrations"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{
		Level:  "error",
		Format: "text",
		Output: "stderr",
	}, "test")
}

// newTestStore opens a migrated SQLite store in a temp directory.
func newTestStore(t *testing.T, markers *vault.Markers) *Store {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "confman.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Best effort cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating store: %v", err)
	}
	return NewStore(db, testLogger(), markers)
}

func mustTree(t testing.TB, data string) *configtree.Value {
	t.Helper()
	v, err := configtree.UnmarshalCanonical([]byte(data))
	if err != nil {
		t.Fatalf("parsing fixture %s: %v", data, err)
	}
	return v
}

func mustCommit(t *testing.T, s *Store, data, author string) *Snapshot {
	t.Helper()
	snap, err := s.Commit(context.Background(), mustTree(t, data), author)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return snap
}

func TestCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	tree := mustTree(t, `{"db":{"host":"localhost","port":5432},"log":"info"}`)

	snap, err := s.Commit(ctx, tree, "alice")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if snap.Seq != 1 {
		t.Errorf("first commit seq = %d, want 1", snap.Seq)
	}
	if !strings.HasPrefix(snap.ID, "snap-") {
		t.Errorf("snapshot ID = %q, want snap- prefix", snap.ID)
	}
	if snap.Hash != configtree.Hash(tree) {
		t.Errorf("snapshot hash = %q, want content hash of tree", snap.Hash)
	}

	got, err := s.Rollback(ctx, snap.Seq)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if !got.Equal(tree) {
		t.Errorf("rolled-back tree = %s, want committed tree",
			configtree.MarshalCanonical(got))
	}
}

func TestCommit_SequenceIsContiguous(t *testing.T) {
	s := newTestStore(t, nil)
	for i := int64(1); i <= 3; i++ {
		snap := mustCommit(t, s, `{"n":1}`, "")
		if snap.Seq != i {
			t.Errorf("commit %d seq = %d", i, snap.Seq)
		}
	}
	if err := s.Verify(context.Background()); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestCommit_RejectsNonMappingRoot(t *testing.T) {
	s := newTestStore(t, nil)
	if _, err := s.Commit(context.Background(), configtree.Sequence(), ""); err == nil {
		t.Error("Commit() with sequence root should fail")
	}
	if _, err := s.Commit(context.Background(), nil, ""); err == nil {
		t.Error("Commit() with nil tree should fail")
	}
}

func TestGet_Metadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	mustCommit(t, s, `{"a":1}`, "alice")
	mustCommit(t, s, `{"a":2}`, "")

	withAuthor, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get(1) error = %v", err)
	}
	if withAuthor.Author != "alice" {
		t.Errorf("author = %q, want alice", withAuthor.Author)
	}
	if withAuthor.CreatedAt.IsZero() {
		t.Error("created_at not recorded")
	}

	anonymous, err := s.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get(2) error = %v", err)
	}
	if anonymous.Author != "" {
		t.Errorf("author = %q, want empty for anonymous commit", anonymous.Author)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.Get(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(99) error = %v, want ErrNotFound", err)
	}
}

func TestList_NewestFirstWithPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	for i := 0; i < 5; i++ {
		mustCommit(t, s, `{"n":1}`, "")
	}

	all, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 5 || len(all.Snapshots) != 5 {
		t.Fatalf("List() total = %d, len = %d, want 5", all.Total, len(all.Snapshots))
	}
	if all.Limit != 50 {
		t.Errorf("default limit = %d, want 50", all.Limit)
	}
	for i, snap := range all.Snapshots {
		if want := int64(5 - i); snap.Seq != want {
			t.Errorf("snapshot[%d].Seq = %d, want %d (newest first)", i, snap.Seq, want)
		}
	}
	if all.Snapshots[0].Tree != nil {
		t.Error("List() must return metadata only, not trees")
	}

	page, err := s.List(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() page error = %v", err)
	}
	if len(page.Snapshots) != 2 || page.Snapshots[0].Seq != 3 || page.Snapshots[1].Seq != 2 {
		t.Errorf("page = %+v, want seqs 3, 2", page.Snapshots)
	}
	if page.Total != 5 {
		t.Errorf("page total = %d, want 5", page.Total)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	s := newTestStore(t, nil)
	res, err := s.List(context.Background(), Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != 200 || res.Offset != 0 {
		t.Errorf("limit = %d, offset = %d, want clamped to 200, 0", res.Limit, res.Offset)
	}
	if res.Snapshots == nil {
		t.Error("empty result should be an empty slice, not nil")
	}
}

func TestGet_DetectsTamperedTree(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	snap := mustCommit(t, s, `{"a":1}`, "")

	// Edit the stored tree behind the store's back. The recorded hash
	// no longer matches.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE config_snapshots SET tree = '{"a":2}' WHERE seq = ?`, snap.Seq,
	); err != nil {
		t.Fatalf("tampering with row: %v", err)
	}

	_, err := s.Get(ctx, snap.Seq)
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		t.Errorf("Get() error = %v, want CorruptionError", err)
	}
}

func TestSequenceGap_FailsReadsNotCommits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	for i := 0; i < 3; i++ {
		mustCommit(t, s, `{"n":1}`, "")
	}

	// Delete the middle snapshot directly, leaving 1 and 3.
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM config_snapshots WHERE seq = 2",
	); err != nil {
		t.Fatalf("deleting row: %v", err)
	}

	_, err := s.List(ctx, Filter{})
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		t.Errorf("List() over gapped history error = %v, want CorruptionError", err)
	}

	// A corrupted history still accepts commits, continuing from the
	// highest surviving sequence number.
	snap, err := s.Commit(ctx, mustTree(t, `{"fresh":true}`), "")
	if err != nil {
		t.Fatalf("Commit() over gapped history error = %v", err)
	}
	if snap.Seq != 4 {
		t.Errorf("post-gap commit seq = %d, want 4", snap.Seq)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	for i := 0; i < 5; i++ {
		mustCommit(t, s, `{"n":1}`, "")
	}

	deleted, err := s.Prune(ctx, 3)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Prune(3) deleted = %d, want 2", deleted)
	}

	// The surviving tail 3..5 is still contiguous, so reads keep working.
	res, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() after prune error = %v", err)
	}
	if res.Total != 3 || res.Snapshots[len(res.Snapshots)-1].Seq != 3 {
		t.Errorf("after prune: total = %d, oldest = %d, want 3 and 3",
			res.Total, res.Snapshots[len(res.Snapshots)-1].Seq)
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(pruned) error = %v, want ErrNotFound", err)
	}
}

func TestDiff(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, vault.NewMarkers([]string{"db.password"}))

	a := mustCommit(t, s, `{"db":{"host":"localhost","password":"old","port":5432},"log":"info"}`, "")
	b := mustCommit(t, s, `{"db":{"host":"db.prod","password":"new"},"log":"info","extra":true}`, "")

	deltas, err := s.Diff(ctx, a.Seq, b.Seq)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}

	byPath := make(map[string]Delta, len(deltas))
	for _, d := range deltas {
		byPath[d.Path] = d
	}
	if len(deltas) != 4 {
		t.Fatalf("deltas = %+v, want 4 entries", deltas)
	}

	if d := byPath["db.host"]; d.Change != ChangeChanged || d.Old != "localhost" || d.New != "db.prod" {
		t.Errorf("db.host delta = %+v", d)
	}
	if d := byPath["db.port"]; d.Change != ChangeRemoved || d.Old != "5432" || d.New != "" {
		t.Errorf("db.port delta = %+v", d)
	}
	if d := byPath["extra"]; d.Change != ChangeAdded || d.New != "true" {
		t.Errorf("extra delta = %+v", d)
	}

	// The password changed, and the diff says so, but neither value is
	// shown.
	d := byPath["db.password"]
	if d.Change != ChangeChanged || !d.Sensitive {
		t.Errorf("db.password delta = %+v, want sensitive change", d)
	}
	if d.Old != "(sensitive)" || d.New != "(sensitive)" {
		t.Errorf("db.password values = %q / %q, must be redacted", d.Old, d.New)
	}
}

func TestDiff_RedactsEncryptedValues(t *testing.T) {
	// A field in vault envelope form is redacted even without a marker.
	ctx := context.Background()
	s := newTestStore(t, nil)

	a := mustCommit(t, s, `{"token":"vault:v1:AAAA:BBBB"}`, "")
	b := mustCommit(t, s, `{"token":"vault:v1:CCCC:DDDD"}`, "")

	deltas, err := s.Diff(ctx, a.Seq, b.Seq)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(deltas) != 1 || !deltas[0].Sensitive || deltas[0].Old != "(sensitive)" {
		t.Errorf("deltas = %+v, want one redacted change", deltas)
	}
}

func TestDiff_Identical(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	a := mustCommit(t, s, `{"a":1}`, "")
	b := mustCommit(t, s, `{"a":1}`, "")

	deltas, err := s.Diff(ctx, a.Seq, b.Seq)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if len(deltas) != 0 {
		t.Errorf("identical snapshots: deltas = %+v, want none", deltas)
	}
}

func TestCommit_RejectsNonFiniteNumbers(t *testing.T) {
	// A NaN has no canonical encoding; committing one would produce a
	// snapshot that can never be read back.
	ctx := context.Background()
	s := newTestStore(t, nil)

	tree := configtree.Mapping()
	tree.Set("ratio", configtree.Number(math.NaN()))

	if _, err := s.Commit(ctx, tree, ""); err == nil {
		t.Fatal("Commit() with a NaN should fail")
	}

	// The refused commit left no row behind.
	res, err := s.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 0 {
		t.Errorf("store has %d snapshots, want 0", res.Total)
	}
}
