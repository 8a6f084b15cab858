package access

import (
	"time"

	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
)

// Decision is the outcome of one permission check together with the grants
// that produced it.
type Decision struct {
	Allowed        bool           `json:"allowed"`
	Reason         string         `json:"reason"`
	DocumentID     int64          `json:"document_id"`
	FolderID       *int64         `json:"folder_id,omitempty"`
	Requested      domain.Level   `json:"requested"`
	EffectiveLevel domain.Level   `json:"effective_level"`
	Privileged     bool           `json:"privileged,omitempty"`
	MatchedGrants  []grants.Grant `json:"matched_grants,omitempty"`
	CheckedAt      time.Time      `json:"checked_at"`
}

// outcome is the metrics label for the decision
func (d *Decision) outcome() string {
	if d.Allowed {
		return "allowed"
	}
	return "denied"
}
