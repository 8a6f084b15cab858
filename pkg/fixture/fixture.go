package fixture

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
)

// Fixture is a parsed site description
type Fixture struct {
	Principals []Principal
	Folders    []Folder
	Documents  []Document
	Grants     []Grant
	Checks     []Check
}

// Position locates an entry in the source file
type Position struct {
	Section string
	Index   int
	Line    int
}

func (p Position) String() string {
	return fmt.Sprintf("%s[%d] (line %d)", p.Section, p.Index, p.Line)
}

// Principal is a user known to the site
type Principal struct {
	ID       int64     `yaml:"id"`
	Username string    `yaml:"username"`
	Role     auth.Role `yaml:"role"`
	Active   *bool     `yaml:"active"` // defaults to true
	Pos      Position  `yaml:"-"`
}

// Principal converts to an auth.Principal
func (p Principal) Principal() auth.Principal {
	active := p.Active == nil || *p.Active
	return auth.Principal{ID: p.ID, Username: p.Username, Role: p.Role, Active: active}
}

// Folder is a folder entry; Parent refers to another entry's id
type Folder struct {
	ID          int64    `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Parent      *int64   `yaml:"parent"`
	Pos         Position `yaml:"-"`
}

// Document is a document entry; Folder refers to a folder entry's id
type Document struct {
	ID     int64    `yaml:"id"`
	Title  string   `yaml:"title"`
	Type   string   `yaml:"type"`
	Folder *int64   `yaml:"folder"`
	Pos    Position `yaml:"-"`
}

// Grant is a grant entry; it sets one of Document/Folder and one of User/Role
type Grant struct {
	Document *int64       `yaml:"document"`
	Folder   *int64       `yaml:"folder"`
	User     *int64       `yaml:"user"`
	Role     auth.Role    `yaml:"role"`
	Level    domain.Level `yaml:"level"`
	Pos      Position     `yaml:"-"`
}

// Check is an access question evaluated by the CLI; Expect is optional
type Check struct {
	User     int64        `yaml:"user"`
	Document int64        `yaml:"document"`
	Level    domain.Level `yaml:"level"`
	Expect   *bool        `yaml:"expect"`
	Pos      Position     `yaml:"-"`
}

// EntryError is a problem with one fixture entry
type EntryError struct {
	Pos Position
	Err error
}

func (e *EntryError) Error() string { return e.Pos.String() + ": " + e.Err.Error() }

func (e *EntryError) Unwrap() error { return e.Err }

type rawFixture struct {
	Principals []yaml.Node `yaml:"principals"`
	Folders    []yaml.Node `yaml:"folders"`
	Documents  []yaml.Node `yaml:"documents"`
	Grants     []yaml.Node `yaml:"grants"`
	Checks     []yaml.Node `yaml:"checks"`
}

// Load reads and validates a fixture file
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates fixture YAML
func Parse(data []byte) (*Fixture, error) {
	var raw rawFixture
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	f := &Fixture{}
	var err error
	if f.Principals, err = decodeSection[Principal](raw.Principals, "principals", func(p *Principal, pos Position) { p.Pos = pos }); err != nil {
		return nil, err
	}
	if f.Folders, err = decodeSection[Folder](raw.Folders, "folders", func(v *Folder, pos Position) { v.Pos = pos }); err != nil {
		return nil, err
	}
	if f.Documents, err = decodeSection[Document](raw.Documents, "documents", func(v *Document, pos Position) { v.Pos = pos }); err != nil {
		return nil, err
	}
	if f.Grants, err = decodeSection[Grant](raw.Grants, "grants", func(v *Grant, pos Position) { v.Pos = pos }); err != nil {
		return nil, err
	}
	if f.Checks, err = decodeSection[Check](raw.Checks, "checks", func(v *Check, pos Position) { v.Pos = pos }); err != nil {
		return nil, err
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeSection[T any](nodes []yaml.Node, section string, setPos func(*T, Position)) ([]T, error) {
	out := make([]T, 0, len(nodes))
	for i := range nodes {
		pos := Position{Section: section, Index: i, Line: nodes[i].Line}
		var v T
		if err := nodes[i].Decode(&v); err != nil {
			return nil, &EntryError{Pos: pos, Err: err}
		}
		setPos(&v, pos)
		out = append(out, v)
	}
	return out, nil
}

// Validate checks ids, references and grant shape
func (f *Fixture) Validate() error {
	principals := make(map[int64]bool)
	for _, p := range f.Principals {
		if p.ID <= 0 {
			return &EntryError{Pos: p.Pos, Err: fmt.Errorf("id must be positive")}
		}
		if principals[p.ID] {
			return &EntryError{Pos: p.Pos, Err: fmt.Errorf("duplicate principal id %d", p.ID)}
		}
		if !p.Role.Valid() {
			return &EntryError{Pos: p.Pos, Err: fmt.Errorf("unknown role %q", p.Role)}
		}
		principals[p.ID] = true
	}

	folders := make(map[int64]bool)
	for _, fo := range f.Folders {
		if fo.ID <= 0 {
			return &EntryError{Pos: fo.Pos, Err: fmt.Errorf("id must be positive")}
		}
		if folders[fo.ID] {
			return &EntryError{Pos: fo.Pos, Err: fmt.Errorf("duplicate folder id %d", fo.ID)}
		}
		// parents must be listed first, which also rules out cycles
		if fo.Parent != nil && !folders[*fo.Parent] {
			return &EntryError{Pos: fo.Pos, Err: fmt.Errorf("parent folder %d is not defined above", *fo.Parent)}
		}
		if fo.Name == "" {
			return &EntryError{Pos: fo.Pos, Err: fmt.Errorf("name is required")}
		}
		folders[fo.ID] = true
	}

	documents := make(map[int64]bool)
	for _, d := range f.Documents {
		if d.ID <= 0 {
			return &EntryError{Pos: d.Pos, Err: fmt.Errorf("id must be positive")}
		}
		if documents[d.ID] {
			return &EntryError{Pos: d.Pos, Err: fmt.Errorf("duplicate document id %d", d.ID)}
		}
		if d.Folder != nil && !folders[*d.Folder] {
			return &EntryError{Pos: d.Pos, Err: fmt.Errorf("unknown folder %d", *d.Folder)}
		}
		if d.Type != "" {
			if _, err := hierarchy.ParseDocumentType(d.Type); err != nil {
				return &EntryError{Pos: d.Pos, Err: err}
			}
		}
		documents[d.ID] = true
	}

	for _, g := range f.Grants {
		if err := g.grant().Validate(); err != nil {
			return &EntryError{Pos: g.Pos, Err: err}
		}
		if g.Document != nil && !documents[*g.Document] {
			return &EntryError{Pos: g.Pos, Err: fmt.Errorf("unknown document %d", *g.Document)}
		}
		if g.Folder != nil && !folders[*g.Folder] {
			return &EntryError{Pos: g.Pos, Err: fmt.Errorf("unknown folder %d", *g.Folder)}
		}
		if g.User != nil && !principals[*g.User] {
			return &EntryError{Pos: g.Pos, Err: fmt.Errorf("unknown user %d", *g.User)}
		}
	}

	for _, c := range f.Checks {
		if !principals[c.User] {
			return &EntryError{Pos: c.Pos, Err: fmt.Errorf("unknown user %d", c.User)}
		}
		if !documents[c.Document] {
			return &EntryError{Pos: c.Pos, Err: fmt.Errorf("unknown document %d", c.Document)}
		}
		if !c.Level.Valid() || c.Level == domain.LevelNone {
			return &EntryError{Pos: c.Pos, Err: fmt.Errorf("level must be READ, WRITE or DELETE")}
		}
	}
	return nil
}

// grant converts the entry using fixture ids
func (g Grant) grant() grants.Grant {
	return grants.Grant{
		DocumentID: g.Document,
		FolderID:   g.Folder,
		UserID:     g.User,
		Role:       g.Role,
		Level:      g.Level,
		GrantedBy:  "fixture",
	}
}

// Principal returns the principal with the given fixture id
func (f *Fixture) Principal(id int64) (auth.Principal, bool) {
	for _, p := range f.Principals {
		if p.ID == id {
			return p.Principal(), true
		}
	}
	return auth.Principal{}, false
}
