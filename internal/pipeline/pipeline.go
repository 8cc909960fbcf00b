// Package pipeline orchestrates the full configuration lifecycle: parse
// layered sources, resolve environment references, merge, validate
// against a schema, encrypt sensitive fields and commit a snapshot.
//
// The stages are fixed and ordered; each stage consumes the previous
// stage's tree and never mutates its input. A validation failure stops
// the pipeline before encryption and commit, so the history store only
// ever contains schema-valid state.
package pipeline

import (
	"context"
	"fmt"

	"github.com/confman-io/confman/internal/configtree"
	"github.com/confman-io/confman/internal/envresolver"
	"github.com/confman-io/confman/internal/history"
	"github.com/confman-io/confman/internal/infrastructure/logging"
	"github.com/confman-io/confman/internal/merge"
	"github.com/confman-io/confman/internal/schema"
	"github.com/confman-io/confman/internal/vault"
)

// ValidationError carries the schema violations that stopped a run.
// All violations are reported, not just the first.
type ValidationError struct {
	Result *schema.Result
}

func (e *ValidationError) Error() string {
	return e.Result.Error()
}

// Pipeline wires the configuration stages together. Fields left nil
// disable the corresponding stage: a nil Schema skips validation, a nil
// Vault skips encryption (but marked plaintext fields then fail the
// run rather than being committed in the clear).
type Pipeline struct {
	Log     *logging.Logger
	Store   *history.Store
	Lock    *history.CommitLock
	Vault   *vault.Vault
	Markers *vault.Markers
	Schema  *schema.Schema
	Strict  bool
	Lookup  envresolver.LookupFunc
}

// Outcome is the result of a pipeline run.
type Outcome struct {
	// Tree is the final tree: merged, resolved, validated and with
	// sensitive fields in encrypted form.
	Tree *configtree.Value

	// Conflicts records every merge decision where sources disagreed.
	Conflicts []merge.Conflict

	// Snapshot is set when the run committed to the history store.
	Snapshot *history.Snapshot
}

// Run executes the pipeline over the given sources, in precedence order
// (lowest first). With commit set, the final tree is appended to the
// history store under the commit lock; otherwise the run is a dry run
// and touches no durable state.
func (p *Pipeline) Run(ctx context.Context, sources []merge.Source, author string, commit bool) (*Outcome, error) {
	resolved := make([]merge.Source, 0, len(sources))
	for _, src := range sources {
		tree, err := envresolver.Resolve(src.Tree, p.lookup())
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", src.Name, err)
		}
		resolved = append(resolved, merge.Source{Name: src.Name, Tree: tree})
	}

	result, err := merge.Merge(resolved)
	if err != nil {
		return nil, err
	}
	for _, c := range result.Conflicts {
		p.Log.Debug("merge conflict resolved",
			"path", c.Path, "winner", c.Winner, "resolution", string(c.Resolution))
	}

	out := &Outcome{Conflicts: result.Conflicts}
	finish := func() error {
		if p.Schema != nil {
			if res := schema.Validate(result.Tree, p.Schema, p.Strict); !res.OK() {
				p.Log.Warn("validation failed", "violations", len(res.Errors))
				return &ValidationError{Result: res}
			}
		}
		tree, err := p.protect(result.Tree)
		if err != nil {
			return err
		}
		out.Tree = tree
		return nil
	}

	if !commit {
		if err := finish(); err != nil {
			return nil, err
		}
		return out, nil
	}

	// The commit lock covers validation and encryption as well as the
	// append, so the validated state cannot race a concurrent committer.
	err = p.Lock.WithLock(ctx, func(ctx context.Context) error {
		if err := finish(); err != nil {
			return err
		}
		snap, err := p.Store.Commit(ctx, out.Tree, author)
		if err != nil {
			return err
		}
		out.Snapshot = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// protect encrypts sensitive fields, or rejects the tree when secrets
// are present but no vault key is configured. Committing a marked
// field in plaintext is never acceptable.
func (p *Pipeline) protect(tree *configtree.Value) (*configtree.Value, error) {
	if p.Markers == nil {
		return tree, nil
	}
	if p.Vault == nil {
		if path := findPlainSecret("", "", tree, p.Markers); path != "" {
			return nil, fmt.Errorf("sensitive field %s present but no vault key configured", path)
		}
		return tree, nil
	}
	return p.Vault.EncryptFields(tree, p.Markers)
}

// lookup returns the configured environment lookup, defaulting to the
// process environment.
func (p *Pipeline) lookup() envresolver.LookupFunc {
	if p.Lookup != nil {
		return p.Lookup
	}
	return envresolver.OS()
}

// findPlainSecret returns the path of the first marked field holding a
// plaintext value, or "" when none exists. Sequence elements inherit
// the enclosing field's marker, matching the vault's walk.
func findPlainSecret(path, key string, v *configtree.Value, markers *vault.Markers) string {
	switch v.Kind() {
	case configtree.KindMapping:
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			if p := findPlainSecret(configtree.ChildPath(path, k), k, child, markers); p != "" {
				return p
			}
		}
	case configtree.KindSequence:
		for _, item := range v.Items() {
			if p := findPlainSecret(path, key, item, markers); p != "" {
				return p
			}
		}
	case configtree.KindString:
		// Only string fields are encryptable; non-string marked fields
		// pass through the vault unchanged.
		if key != "" && markers.Matches(path, key) && !vault.IsEncrypted(v.StringVal()) {
			return path
		}
	}
	return ""
}
