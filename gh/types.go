package gh

import "time"

// PR display states derived from the raw state plus merge timestamp.
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
)

// PullRequest is the domain model for one collected pull request.
// The metric fields (Additions through Files) are zero until the fetch
// pipeline enriches the PR; StarIncrease stays nil unless star aggregation
// ran for its repository.
type PullRequest struct {
	Number            int        `json:"number" msgpack:"number"`
	Title             string     `json:"title" msgpack:"title"`
	Repository        string     `json:"repository" msgpack:"repository"` // owner/name
	Organization      string     `json:"organization" msgpack:"organization"`
	Author            string     `json:"author" msgpack:"author"`
	State             string     `json:"state" msgpack:"state"`
	CreatedAt         time.Time  `json:"created_at" msgpack:"created_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty" msgpack:"closed_at"`
	MergedAt          *time.Time `json:"merged_at,omitempty" msgpack:"merged_at"`
	URL               string     `json:"url" msgpack:"url"`
	AuthorAssociation string     `json:"author_association,omitempty" msgpack:"author_association"`

	Additions    int      `json:"additions" msgpack:"additions"`
	Deletions    int      `json:"deletions" msgpack:"deletions"`
	ChangedFiles int      `json:"changed_files" msgpack:"changed_files"`
	Files        []string `json:"files,omitempty" msgpack:"files"`

	StarIncrease *int   `json:"star_increase,omitempty" msgpack:"star_increase"`
	SizeCategory string `json:"size_category,omitempty" msgpack:"size_category"`
}

// DisplayState collapses the raw state and merge timestamp into the state
// shown on reports: a closed PR with a merge timestamp displays as merged.
func (pr *PullRequest) DisplayState() string {
	if pr.MergedAt != nil {
		return StateMerged
	}
	if pr.State == StateOpen {
		return StateOpen
	}
	return StateClosed
}

// Owner returns the owner half of the repository full name, or "" when the
// full name is malformed.
func (pr *PullRequest) Owner() string {
	owner, _, ok := SplitRepo(pr.Repository)
	if !ok {
		return ""
	}
	return owner
}

// FileStats is the per-PR metric record produced by one enrichment fetch.
type FileStats struct {
	Additions    int      `msgpack:"additions"`
	Deletions    int      `msgpack:"deletions"`
	ChangedFiles int      `msgpack:"changed_files"`
	Filenames    []string `msgpack:"filenames"`
}

// Repository is the subset of repository metadata the engine consumes.
type Repository struct {
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Stargazers  int    `json:"stargazers_count"`
}

// StarEvent is one stargazer event with its timestamp.
type StarEvent struct {
	StarredAt time.Time
}

// StarPage is one page of stargazer events, ordered newest-first.
type StarPage struct {
	Events     []StarEvent
	NextCursor string
	HasMore    bool
}
