package access

import (
	"fmt"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
)

// GrantSet indexes the grants that apply to one principal by target. It is
// built once per check, or once per bulk filter, and is read-only afterwards.
type GrantSet struct {
	principal  auth.Principal
	byDocument map[int64][]grants.Grant
	byFolder   map[int64][]grants.Grant
	size       int
}

// NewGrantSet keeps the grants from sets that apply to p. A grant that shows
// up in more than one set (same non-zero id) is kept once.
func NewGrantSet(p auth.Principal, sets ...[]grants.Grant) *GrantSet {
	s := &GrantSet{
		principal:  p,
		byDocument: make(map[int64][]grants.Grant),
		byFolder:   make(map[int64][]grants.Grant),
	}
	seen := make(map[int64]bool)
	for _, set := range sets {
		for _, g := range set {
			if !g.AppliesTo(p) {
				continue
			}
			if g.ID != 0 {
				if seen[g.ID] {
					continue
				}
				seen[g.ID] = true
			}
			switch {
			case g.DocumentID != nil:
				s.byDocument[*g.DocumentID] = append(s.byDocument[*g.DocumentID], g)
			case g.FolderID != nil:
				s.byFolder[*g.FolderID] = append(s.byFolder[*g.FolderID], g)
			default:
				continue
			}
			s.size++
		}
	}
	return s
}

// Len reports how many applicable grants the set holds
func (s *GrantSet) Len() int { return s.size }

// Matching returns the candidate grants for a document: direct grants
// first, then grants on folderID when the document sits in a folder.
func (s *GrantSet) Matching(documentID int64, folderID *int64) []grants.Grant {
	direct := s.byDocument[documentID]
	var inherited []grants.Grant
	if folderID != nil {
		inherited = s.byFolder[*folderID]
	}
	if len(direct) == 0 && len(inherited) == 0 {
		return nil
	}
	out := make([]grants.Grant, 0, len(direct)+len(inherited))
	out = append(out, direct...)
	return append(out, inherited...)
}

// LevelFor returns the highest level among the candidates, or LevelNone
func (s *GrantSet) LevelFor(documentID int64, folderID *int64) domain.Level {
	level := domain.LevelNone
	for _, g := range s.Matching(documentID, folderID) {
		level = domain.MaxLevel(level, g.Level)
	}
	return level
}

// Decide resolves requested against the candidates for a document
func (s *GrantSet) Decide(documentID int64, folderID *int64, requested domain.Level) *Decision {
	matched := s.Matching(documentID, folderID)
	effective := domain.LevelNone
	for _, g := range matched {
		effective = domain.MaxLevel(effective, g.Level)
	}

	d := &Decision{
		DocumentID:     documentID,
		FolderID:       folderID,
		Requested:      requested,
		EffectiveLevel: effective,
		MatchedGrants:  matched,
		Allowed:        effective.Entails(requested),
	}
	switch {
	case len(matched) == 0:
		d.Reason = "no applicable grant"
	case d.Allowed:
		d.Reason = fmt.Sprintf("granted %s by %d grant(s)", effective, len(matched))
	default:
		d.Reason = fmt.Sprintf("effective level %s is below %s", effective, requested)
	}
	return d
}
