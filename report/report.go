package report

import (
	"time"

	"github.com/justapithecus/gitbrag/fetch"
	"github.com/justapithecus/gitbrag/gh"
)

// CreatedBySystem marks reports generated by the background scheduler rather
// than a named requester.
const CreatedBySystem = "system"

// SizeBucket is one entry of the ordered size distribution.
type SizeBucket struct {
	Category string `json:"category" msgpack:"category"`
	Count    int    `json:"count" msgpack:"count"`
}

// RepoGroup is one repository's slice of the report, in display order.
type RepoGroup struct {
	FullName    string `json:"full_name" msgpack:"full_name"`
	Description string `json:"description,omitempty" msgpack:"description"`
	// Role is the author association of the subject's most recent PR in
	// this repository, e.g. "MEMBER" or "CONTRIBUTOR".
	Role string `json:"role,omitempty" msgpack:"role"`
	// StarIncrease is nil when star data was not requested or was
	// unavailable for this repository; stars.Capped means "more than the
	// counting cap".
	StarIncrease *int             `json:"star_increase,omitempty" msgpack:"star_increase"`
	PullRequests []gh.PullRequest `json:"pull_requests" msgpack:"pull_requests"`
}

// Report is the fully computed contribution report, the value stored under
// the permanent report key.
type Report struct {
	Username string    `json:"username" msgpack:"username"`
	Period   Period    `json:"period" msgpack:"period"`
	Since    time.Time `json:"since" msgpack:"since"`
	Until    time.Time `json:"until" msgpack:"until"`

	TotalPRs    int `json:"total_prs" msgpack:"total_prs"`
	MergedCount int `json:"merged_count" msgpack:"merged_count"`
	OpenCount   int `json:"open_count" msgpack:"open_count"`
	ClosedCount int `json:"closed_count" msgpack:"closed_count"`
	RepoCount   int `json:"repo_count" msgpack:"repo_count"`

	TotalAdditions    int `json:"total_additions" msgpack:"total_additions"`
	TotalDeletions    int `json:"total_deletions" msgpack:"total_deletions"`
	TotalChangedFiles int `json:"total_changed_files" msgpack:"total_changed_files"`

	// TotalStarIncrease is nil unless star data was requested; stars.Capped
	// when any repository exceeded the counting cap.
	TotalStarIncrease *int `json:"total_star_increase,omitempty" msgpack:"total_star_increase"`

	LanguageBreakdown []LanguageShare `json:"language_breakdown,omitempty" msgpack:"language_breakdown"`
	SizeDistribution  []SizeBucket    `json:"size_distribution,omitempty" msgpack:"size_distribution"`
	Repositories      []RepoGroup     `json:"repositories" msgpack:"repositories"`

	// Stats records enrichment outcomes for diagnostics; a non-zero failure
	// count still yields a committed report with the failed items carrying
	// empty metrics.
	Stats fetch.CollectionStats `json:"collection_stats" msgpack:"collection_stats"`
}

// Metadata describes one committed report body. It is written after the body
// so a reader never sees metadata for a body that does not exist yet.
type Metadata struct {
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
	CreatedBy  string    `json:"created_by" msgpack:"created_by"`
	Since      time.Time `json:"since" msgpack:"since"`
	Until      time.Time `json:"until" msgpack:"until"`
	ParamsHash string    `json:"params_hash" msgpack:"params_hash"`
}

// CacheMeta is the cache status returned alongside a report to callers.
type CacheMeta struct {
	Metadata
	// Age is how old the committed body is at read time.
	Age time.Duration `json:"age"`
	// IsStale reports whether the body exceeded the configured stale age.
	IsStale bool `json:"is_stale"`
	// IsRegenerating reports whether a generation for this key or subject
	// is currently leased.
	IsRegenerating bool `json:"is_regenerating"`
}
