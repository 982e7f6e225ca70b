package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/solatis/claimscrub/internal/rules"
	"github.com/solatis/claimscrub/internal/types"
)

// Store is the rule repository. Rules, test results and scrub reports are
// stored as JSON bodies next to the indexed columns used for filtering;
// conflicts are stored column by column.
type Store struct {
	q   *Queries
	now func() time.Time
}

// NewStore creates a store over loaded queries.
func NewStore(q *Queries) *Store {
	return &Store{q: q, now: time.Now}
}

// ListRules returns every stored rule ordered by id.
func (s *Store) ListRules(ctx context.Context) ([]types.Rule, error) {
	var bodies []string
	if err := s.q.SelectContext(ctx, "list-rules", &bodies); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return decodeRules(bodies)
}

// ListRulesByStatus returns rules in one lifecycle state ordered by id.
func (s *Store) ListRulesByStatus(ctx context.Context, status types.Status) ([]types.Rule, error) {
	var bodies []string
	if err := s.q.SelectContext(ctx, "list-rules-by-status", &bodies, string(status)); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return decodeRules(bodies)
}

// GetRule returns one rule or types.ErrRuleNotFound.
func (s *Store) GetRule(ctx context.Context, id types.RuleID) (types.Rule, error) {
	return getRule(ctx, s.q, id)
}

func getRule(ctx context.Context, q *Queries, id types.RuleID) (types.Rule, error) {
	var body string
	err := q.GetContext(ctx, "get-rule", &body, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Rule{}, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
	}
	if err != nil {
		return types.Rule{}, fmt.Errorf("get rule %s: %w", id, err)
	}

	var rule types.Rule
	if err := json.Unmarshal([]byte(body), &rule); err != nil {
		return types.Rule{}, fmt.Errorf("decode rule %s: %w", id, err)
	}
	return rule, nil
}

// SaveRule inserts rule, or replaces the stored rule with the same id.
// A new rule gets a UUIDv7 id when it has none and starts at version 1;
// a replacement gets the stored version plus one. rule is updated in place.
func (s *Store) SaveRule(ctx context.Context, rule *types.Rule) error {
	if rule.ID == "" {
		rule.ID = types.NewRuleID()
	}
	now := s.now().UTC()

	return s.q.InTx(ctx, func(tx *Queries) error {
		var current int
		err := tx.GetContext(ctx, "get-rule-version", &current, string(rule.ID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if rule.Version < 1 {
				rule.Version = 1
			}
			if rule.CreatedAt.IsZero() {
				rule.CreatedAt = now
			}
			if rule.ModifiedAt.IsZero() {
				rule.ModifiedAt = now
			}
			return insertRule(ctx, tx, rule)
		case err != nil:
			return fmt.Errorf("get rule version %s: %w", rule.ID, err)
		}

		rule.Version = current + 1
		rule.ModifiedAt = now
		return updateRule(ctx, tx, rule, current)
	})
}

// ModifyRule loads a rule, applies fn and writes it back in one transaction.
// fn is expected to bump the version (rules.Transition does); the write only
// succeeds while the stored version still matches the one read.
func (s *Store) ModifyRule(ctx context.Context, id types.RuleID, fn func(rule *types.Rule) error) (types.Rule, error) {
	var out types.Rule
	err := s.q.InTx(ctx, func(tx *Queries) error {
		rule, err := getRule(ctx, tx, id)
		if err != nil {
			return err
		}
		prev := rule.Version
		if err := fn(&rule); err != nil {
			return err
		}
		if err := updateRule(ctx, tx, &rule, prev); err != nil {
			return err
		}
		out = rule
		return nil
	})
	return out, err
}

func insertRule(ctx context.Context, q *Queries, rule *types.Rule) error {
	body, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encode rule %s: %w", rule.ID, err)
	}
	_, err = q.ExecContext(ctx, "insert-rule",
		string(rule.ID), rule.Name, string(rule.Type), string(rule.Scope), rule.ScopeID,
		string(rule.Status), rule.Priority, rule.Version,
		rule.EffectiveDate.UTC(), nullTime(rule.ExpirationDate), string(body),
		rule.CreatedAt.UTC(), rule.ModifiedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", rule.ID, err)
	}
	return nil
}

func updateRule(ctx context.Context, q *Queries, rule *types.Rule, prevVersion int) error {
	body, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encode rule %s: %w", rule.ID, err)
	}
	res, err := q.ExecContext(ctx, "update-rule",
		rule.Name, string(rule.Type), string(rule.Scope), rule.ScopeID,
		string(rule.Status), rule.Priority, rule.Version,
		rule.EffectiveDate.UTC(), nullTime(rule.ExpirationDate), string(body), rule.ModifiedAt.UTC(),
		string(rule.ID), prevVersion,
	)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", rule.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s at version %d", types.ErrVersionConflict, rule.ID, prevVersion)
	}
	return nil
}

// AttachTestResult records a harness result and caches it on its rule.
// The rule version is unchanged: a test result is metadata, not an edit.
func (s *Store) AttachTestResult(ctx context.Context, result types.TestResult) error {
	return s.q.InTx(ctx, func(tx *Queries) error {
		rule, err := getRule(ctx, tx, result.RuleID)
		if err != nil {
			return err
		}

		body, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode test result: %w", err)
		}
		ranAt := result.RanAt
		if ranAt.IsZero() {
			ranAt = s.now()
		}
		id := uuid.Must(uuid.NewV7()).String()
		if _, err := tx.ExecContext(ctx, "insert-test-result", id, string(result.RuleID), ranAt.UTC(), string(body)); err != nil {
			return fmt.Errorf("insert test result: %w", err)
		}

		rule.TestResult = &result
		ruleBody, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("encode rule %s: %w", rule.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "update-rule-body", string(ruleBody), string(rule.ID)); err != nil {
			return fmt.Errorf("update rule %s: %w", rule.ID, err)
		}
		return nil
	})
}

// ListTestResults returns a rule's test history, newest first.
func (s *Store) ListTestResults(ctx context.Context, id types.RuleID) ([]types.TestResult, error) {
	var bodies []string
	if err := s.q.SelectContext(ctx, "list-test-results", &bodies, string(id)); err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	results := make([]types.TestResult, 0, len(bodies))
	for _, b := range bodies {
		var r types.TestResult
		if err := json.Unmarshal([]byte(b), &r); err != nil {
			return nil, fmt.Errorf("decode test result: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// ReplaceConflicts stores a fresh detection run in place of the previous one.
// Conflict ids are derived from the rule pair, so a pair resolved before
// stays resolved. Each stored rule's conflictsWith is rewritten to match
// the run. Returns the stored conflicts with their resolved flags.
func (s *Store) ReplaceConflicts(ctx context.Context, conflicts []types.Conflict) ([]types.Conflict, error) {
	stored := make([]types.Conflict, len(conflicts))
	copy(stored, conflicts)

	err := s.q.InTx(ctx, func(tx *Queries) error {
		var resolvedIDs []string
		if err := tx.SelectContext(ctx, "list-resolved-conflict-ids", &resolvedIDs, true); err != nil {
			return fmt.Errorf("list resolved conflicts: %w", err)
		}
		resolved := make(map[types.ConflictID]bool, len(resolvedIDs))
		for _, id := range resolvedIDs {
			resolved[types.ConflictID(id)] = true
		}

		if _, err := tx.ExecContext(ctx, "delete-conflicts"); err != nil {
			return fmt.Errorf("delete conflicts: %w", err)
		}

		for i := range stored {
			c := &stored[i]
			c.Resolved = c.Resolved || resolved[c.ID]
			_, err := tx.ExecContext(ctx, "insert-conflict",
				string(c.ID), string(c.Rule1), string(c.Rule2), string(c.Type), string(c.Severity),
				c.Score, c.Description, c.Recommendation, c.Resolved, c.DetectedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert conflict %s: %w", c.ID, err)
			}
		}
		return linkConflicts(ctx, tx, stored)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// linkConflicts rewrites each rule's conflictsWith from conflicts.
// Rules absent from every conflict are cleared. Versions are untouched.
func linkConflicts(ctx context.Context, tx *Queries, conflicts []types.Conflict) error {
	peers := make(map[types.RuleID][]types.RuleID)
	for _, c := range conflicts {
		peers[c.Rule1] = append(peers[c.Rule1], c.Rule2)
		peers[c.Rule2] = append(peers[c.Rule2], c.Rule1)
	}

	var bodies []string
	if err := tx.SelectContext(ctx, "list-rules", &bodies); err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	stored, err := decodeRules(bodies)
	if err != nil {
		return err
	}

	for i := range stored {
		rule := &stored[i]
		ids := peers[rule.ID]
		slices.Sort(ids)
		ids = slices.Compact(ids)
		if slices.Equal(ids, rule.ConflictsWith) {
			continue
		}
		rule.ConflictsWith = ids
		body, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("encode rule %s: %w", rule.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "update-rule-body", string(body), string(rule.ID)); err != nil {
			return fmt.Errorf("update rule %s: %w", rule.ID, err)
		}
	}
	return nil
}

// ListConflicts returns stored conflicts by descending score.
// Resolved conflicts are included only when includeResolved is set.
func (s *Store) ListConflicts(ctx context.Context, includeResolved bool) ([]types.Conflict, error) {
	var conflicts []types.Conflict
	var err error
	if includeResolved {
		err = s.q.SelectContext(ctx, "list-conflicts", &conflicts)
	} else {
		err = s.q.SelectContext(ctx, "list-open-conflicts", &conflicts, false)
	}
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	for i := range conflicts {
		conflicts[i].DetectedAt = conflicts[i].DetectedAt.UTC()
	}
	return conflicts, nil
}

// ResolveConflict marks a conflict as reviewed.
func (s *Store) ResolveConflict(ctx context.Context, id types.ConflictID) error {
	res, err := s.q.ExecContext(ctx, "resolve-conflict", true, string(id))
	if err != nil {
		return fmt.Errorf("resolve conflict %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", types.ErrConflictNotFound, id)
	}
	return nil
}

// SaveScrubReport persists a scrub report for the tenant that requested it.
func (s *Store) SaveScrubReport(ctx context.Context, tenantID string, report *rules.ScrubReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode scrub report: %w", err)
	}
	_, err = s.q.ExecContext(ctx, "insert-scrub-report",
		string(report.ScrubID), report.ClaimID, tenantID, report.Denied, string(report.DeniedBy),
		report.RuleSetETag, report.EvaluatedAt.UTC(), string(body),
	)
	if err != nil {
		return fmt.Errorf("insert scrub report %s: %w", report.ScrubID, err)
	}
	return nil
}

// ListScrubReports returns reports for a claim, newest first.
func (s *Store) ListScrubReports(ctx context.Context, claimID string) ([]rules.ScrubReport, error) {
	var bodies []string
	if err := s.q.SelectContext(ctx, "list-scrub-reports-by-claim", &bodies, claimID); err != nil {
		return nil, fmt.Errorf("list scrub reports: %w", err)
	}
	reports := make([]rules.ScrubReport, 0, len(bodies))
	for _, b := range bodies {
		var r rules.ScrubReport
		if err := json.Unmarshal([]byte(b), &r); err != nil {
			return nil, fmt.Errorf("decode scrub report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// CreateAPIKey stores the HMAC hash of a new API key and returns its id.
// The key itself is never stored.
func (s *Store) CreateAPIKey(ctx context.Context, tenantID, name string, keyHash []byte) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := s.q.ExecContext(ctx, "insert-api-key", id, tenantID, name, keyHash, s.now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert api key: %w", err)
	}
	return id, nil
}

// RevokeAPIKey blocks an API key. Revoking twice is not an error.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, "revoke-api-key", s.now().UTC(), id); err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	return nil
}

func decodeRules(bodies []string) ([]types.Rule, error) {
	out := make([]types.Rule, 0, len(bodies))
	for _, b := range bodies {
		var rule types.Rule
		if err := json.Unmarshal([]byte(b), &rule); err != nil {
			return nil, fmt.Errorf("decode rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
