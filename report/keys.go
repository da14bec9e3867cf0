package report

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Params are the options that shape a report's content. Distinct param sets
// cache under distinct keys.
type Params struct {
	// ShowStarIncrease includes per-repository star growth, which costs
	// extra upstream paging.
	ShowStarIncrease bool `yaml:"show_star_increase" json:"show_star_increase"`
}

// Hash returns a short deterministic digest of the params, used to scope
// cache keys. JSON with sorted keys keeps the digest stable across runs.
func (p Params) Hash() string {
	encoded, _ := json.Marshal(map[string]any{
		"show_star_increase": p.ShowStarIncrease,
	})
	sum := md5.Sum(encoded)
	return hex.EncodeToString(sum[:])[:8]
}

// ReportKey is the permanent cache key for a report body. Subjects are
// lowercased so case variants share one entry.
func ReportKey(subject string, period Period, paramsHash string) string {
	return fmt.Sprintf("report:%s:%s:%s", strings.ToLower(subject), period, paramsHash)
}

// MetaKey is the permanent cache key for a report's metadata record.
func MetaKey(subject string, period Period, paramsHash string) string {
	return fmt.Sprintf("report:meta:%s:%s:%s", strings.ToLower(subject), period, paramsHash)
}
