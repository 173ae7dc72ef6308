// Package verify holds the crowd-verification policy: when aggregated user
// reports flip a fact from unverified to verified, and what a winning set of
// remove reports does to it. The report stores call into this package inside
// the same transaction that appends the report, so the rule is explicit and
// testable rather than a database trigger.
package verify

// RemovalPolicy decides the effect of remove-type reports reaching the
// thresholds.
type RemovalPolicy string

const (
	// RemovalFlag hides the record from queries but keeps the row.
	RemovalFlag RemovalPolicy = "flag"
	// RemovalDelete drops the row.
	RemovalDelete RemovalPolicy = "delete"
)

type Config struct {
	// MinReports is the minimum total report count (any type) before a
	// transition can fire.
	MinReports int
	// MinConfirmRatio is the minimum share of confirm reports among all
	// reports against the target.
	MinConfirmRatio float64
	Removal         RemovalPolicy
}

func DefaultConfig() Config {
	return Config{MinReports: 5, MinConfirmRatio: 0.8, Removal: RemovalFlag}
}

// Met reports whether the confirm tally crosses the verification thresholds.
// Confirms count toward the numerator; every report type counts toward the
// denominator.
func (c Config) Met(confirms, total int) bool {
	if total < c.MinReports || total == 0 {
		return false
	}
	return float64(confirms)/float64(total) >= c.MinConfirmRatio
}

// RemovalMet applies the same counting rule to remove-type reports.
func (c Config) RemovalMet(removes, total int) bool {
	if total < c.MinReports || total == 0 {
		return false
	}
	return float64(removes)/float64(total) >= c.MinConfirmRatio
}

// Tally is the aggregate state of a target's report ledger.
type Tally struct {
	Confirms int
	Removes  int
	Total    int
}

// Outcome is the verification decision for a target after a report append.
type Outcome struct {
	// Verified is the target's new verified flag. Monotonic: once a target
	// is verified it stays verified.
	Verified bool
	// VerificationCount tracks the confirm count whenever the target is
	// verified; untouched otherwise.
	VerificationCount int
	// UpdateCount is set when VerificationCount should be written back.
	UpdateCount bool
	// Remove is set when the removal thresholds were crossed; the store
	// applies the configured RemovalPolicy.
	Remove bool
}

// Evaluate computes the transition for a target that currently has the given
// verified flag, after its ledger reaches t.
func (c Config) Evaluate(alreadyVerified bool, t Tally) Outcome {
	out := Outcome{Verified: alreadyVerified}
	if alreadyVerified || c.Met(t.Confirms, t.Total) {
		out.Verified = true
		out.VerificationCount = t.Confirms
		out.UpdateCount = true
	}
	if c.RemovalMet(t.Removes, t.Total) {
		out.Remove = true
	}
	return out
}
