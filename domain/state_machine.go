package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsecutiveLowQualityCap is the default N in "N consecutive sub-threshold
// sightings, no high hits" (spec.md §4.3). Configurable via
// config.ScoringConfig.ConsecutiveLowQualityCap; this is the fallback used
// when a Domain is manipulated directly in tests.
const ConsecutiveLowQualityCap = 5

// NewDomain creates a Domain in its initial DISCOVERED state (spec.md §4.3:
// "Created on first sighting").
func NewDomain(name string, now time.Time) *Domain {
	return &Domain{
		DomainName:          name,
		Status:              DomainDiscovered,
		DiscoveredAt:         now,
		LastProcessedAt:      now,
		BestConfidenceScore:  decimal.Zero,
	}
}

// Touch records that a result for this domain was just processed, without
// changing status — the registry update step for an already-known domain
// (spec.md §4.3 step 4).
func (d *Domain) Touch(now time.Time) {
	d.LastProcessedAt = now
}

// ApplyScore folds a judged score into the domain's counters and advances
// the state machine (spec.md §4.3, §4.4). admitted is whether the score met
// the 0.60 threshold. cap is the consecutive-low-quality threshold
// (config.ScoringConfig.ConsecutiveLowQualityCap); pass
// ConsecutiveLowQualityCap if unconfigured.
//
// bestConfidenceScore is a compare-and-swap: monotonic non-decreasing
// regardless of caller concurrency (spec.md §5 "shared-resource policy").
func (d *Domain) ApplyScore(score decimal.Decimal, admitted bool, cap int, now time.Time) {
	d.LastProcessedAt = now
	if score.GreaterThan(d.BestConfidenceScore) {
		d.BestConfidenceScore = score
	}

	if admitted {
		d.HighQualityCount++
		d.ConsecutiveLowCount = 0
		d.Status = DomainProcessedHighQuality
		return
	}

	d.LowQualityCount++
	d.ConsecutiveLowCount++
	if d.Status == DomainDiscovered && d.ConsecutiveLowCount >= cap {
		d.Status = DomainProcessedLowQuality
	}
}

// Blacklist marks the domain terminal (spec.md §4.3: "admin action; terminal
// unless lifted").
func (d *Domain) Blacklist(reason string, now time.Time) {
	d.Status = DomainBlacklisted
	d.BlacklistReason = reason
	d.LastProcessedAt = now
}

// RecordError increments the consecutive-error counter and transitions to
// FAILED once it reaches the ceiling (spec.md §4.3: "counters only; after
// configured consecutive errors; domain still searchable" — FAILED does not
// block future lookups, unlike BLACKLISTED).
func (d *Domain) RecordError(ceiling int, now time.Time) {
	d.ConsecutiveErrCount++
	d.LastProcessedAt = now
	if d.ConsecutiveErrCount >= ceiling {
		d.Status = DomainFailed
	}
}

// ClearErrors resets the consecutive-error counter after a successful
// processing pass, without perturbing Status.
func (d *Domain) ClearErrors() {
	d.ConsecutiveErrCount = 0
}
