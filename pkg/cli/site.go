package cli

import (
	"context"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/trialsite/siteaccess/pkg/access"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/fixture"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
)

// site is a fixture loaded into in-memory stores
type site struct {
	fixture *fixture.Fixture
	applied *fixture.Applied
	index   *hierarchy.MemoryIndex
	store   *grants.MemoryStore
	authz   *access.Authorizer
	catalog *access.Catalog

	// stored id -> fixture id
	folders   map[int64]int64
	documents map[int64]int64
}

func loadSite(ctx context.Context, path string, log *logrus.Logger) (*site, error) {
	f, err := fixture.Load(path)
	if err != nil {
		return nil, err
	}

	s := &site{
		fixture: f,
		index:   hierarchy.NewMemoryIndex(),
		store:   grants.NewMemoryStore(),
	}
	s.authz = access.NewAuthorizer(s.store, s.index)
	s.catalog = access.NewCatalog(s.index, s.authz)

	if s.applied, err = f.Apply(ctx, s.index, s.store, nil); err != nil {
		return nil, err
	}
	s.folders = invert(s.applied.Folders)
	s.documents = invert(s.applied.Documents)

	log.WithFields(logrus.Fields{
		"path":       path,
		"principals": len(f.Principals),
		"folders":    len(f.Folders),
		"documents":  len(f.Documents),
		"grants":     s.applied.Grants,
	}).Debug("fixture loaded")
	return s, nil
}

func invert(m map[int64]int64) map[int64]int64 {
	out := make(map[int64]int64, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func (s *site) principal(id int64) (auth.Principal, error) {
	p, ok := s.fixture.Principal(id)
	if !ok {
		return auth.Principal{}, domain.NewNotFoundError("principal", id)
	}
	return p, nil
}

func (s *site) document(fixtureID int64) (int64, error) {
	id, ok := s.applied.Document(fixtureID)
	if !ok {
		return 0, domain.NewNotFoundError("document", fixtureID)
	}
	return id, nil
}

func (s *site) folder(fixtureID int64) (int64, error) {
	id, ok := s.applied.Folders[fixtureID]
	if !ok {
		return 0, domain.NewNotFoundError("folder", fixtureID)
	}
	return id, nil
}

func (s *site) localFolder(stored *int64) *int64 {
	if stored == nil {
		return nil
	}
	id := s.folders[*stored]
	return &id
}

func (s *site) localDocument(stored *int64) *int64 {
	if stored == nil {
		return nil
	}
	id := s.documents[*stored]
	return &id
}

// localGrant rewrites stored ids to fixture ids
func (s *site) localGrant(g grants.Grant) grants.Grant {
	g.DocumentID = s.localDocument(g.DocumentID)
	g.FolderID = s.localFolder(g.FolderID)
	return g
}

// explain answers one question in fixture ids
func (s *site) explain(ctx context.Context, userID, documentID int64, level domain.Level) (*access.Decision, error) {
	p, err := s.principal(userID)
	if err != nil {
		return nil, err
	}
	stored, err := s.document(documentID)
	if err != nil {
		return nil, err
	}

	d, err := s.authz.Explain(ctx, p, stored, level)
	if err != nil {
		return nil, err
	}
	d.DocumentID = documentID
	d.FolderID = s.localFolder(d.FolderID)
	for i := range d.MatchedGrants {
		d.MatchedGrants[i] = s.localGrant(d.MatchedGrants[i])
	}
	return d, nil
}

// checkResult is the outcome of one fixture check
type checkResult struct {
	Position  string       `json:"position"`
	User      int64        `json:"user"`
	Inactive  bool         `json:"inactive,omitempty"`
	Document  int64        `json:"document"`
	Level     domain.Level `json:"level"`
	Allowed   bool         `json:"allowed"`
	Effective domain.Level `json:"effective_level"`
	Expect    *bool        `json:"expect,omitempty"`
	Pass      bool         `json:"pass"`
}

// runChecks evaluates every check in the fixture. A check without an
// expectation always passes.
func (s *site) runChecks(ctx context.Context) ([]checkResult, error) {
	results := make([]checkResult, 0, len(s.fixture.Checks))
	for _, c := range s.fixture.Checks {
		d, err := s.explain(ctx, c.User, c.Document, c.Level)
		if err != nil {
			return nil, &fixture.EntryError{Pos: c.Pos, Err: err}
		}
		p, _ := s.principal(c.User)
		results = append(results, checkResult{
			Position:  c.Pos.String(),
			User:      c.User,
			Inactive:  !p.Active,
			Document:  c.Document,
			Level:     c.Level,
			Allowed:   d.Allowed,
			Effective: d.EffectiveLevel,
			Expect:    c.Expect,
			Pass:      c.Expect == nil || *c.Expect == d.Allowed,
		})
	}
	return results, nil
}

// allGrants lists every stored grant, ordered by id
func (s *site) allGrants(ctx context.Context) ([]grants.Grant, error) {
	seen := make(map[int64]grants.Grant)
	for _, role := range auth.AllRoles {
		found, err := s.store.FindByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		for _, g := range found {
			seen[g.ID] = g
		}
	}
	for _, p := range s.fixture.Principals {
		found, err := s.store.FindByPrincipal(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, g := range found {
			seen[g.ID] = g
		}
	}

	out := make([]grants.Grant, 0, len(seen))
	for _, g := range seen {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("invalid %s id %q", what, arg)
	}
	return id, nil
}
