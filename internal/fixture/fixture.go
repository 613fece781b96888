// Package fixture loads sample data sets of events, authors and follows
// from YAML or JSON files.
package fixture

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nostrcache/internal/model"
)

//go:embed sample.yaml
var sampleYAML []byte

// Fixture is a named set of entities to load into a store.
type Fixture struct {
	// Name identifies the fixture in logs.
	Name string `yaml:"name"`

	// Description explains what the data set contains.
	Description string `yaml:"description,omitempty"`

	// Source is recorded as the relay the events were seen on.
	Source string `yaml:"source,omitempty"`

	// CurrentUser is the public key the data set was built around. Callers
	// may override it.
	CurrentUser string `yaml:"current_user,omitempty"`

	// Authors are profiles stored as-is.
	Authors []model.Author `yaml:"authors,omitempty"`

	// Events are stored by id. Events without an id get their computed id.
	Events []model.Event `yaml:"events,omitempty"`

	// Follows are edges stored in addition to those from contact lists.
	Follows []model.Follow `yaml:"follows,omitempty"`
}

// Load reads and parses a fixture file. JSON is accepted too.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	fx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fx, nil
}

// Sample returns the built-in sample data set.
func Sample() *Fixture {
	fx, err := Parse(sampleYAML)
	if err != nil {
		panic(fmt.Sprintf("fixture: built-in sample is invalid: %v", err))
	}
	return fx
}

// Parse decodes and validates a fixture. Unknown fields are rejected.
func Parse(data []byte) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	for i := range fx.Events {
		if fx.Events[i].ID == "" {
			fx.Events[i].ID = model.ComputeEventID(fx.Events[i])
		}
	}

	if err := validate(&fx); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &fx, nil
}

func validate(fx *Fixture) error {
	if fx.Name == "" {
		return fmt.Errorf("name is required")
	}

	seen := make(map[string]bool, len(fx.Events))
	for i, e := range fx.Events {
		if e.AuthorKey == "" {
			return fmt.Errorf("events[%d]: pubkey is required", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("events[%d]: duplicate id %s", i, e.ID)
		}
		seen[e.ID] = true
		if err := model.VerifyID(e); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	for i, a := range fx.Authors {
		if a.PublicKey == "" {
			return fmt.Errorf("authors[%d]: pubkey is required", i)
		}
	}

	for i, f := range fx.Follows {
		if f.SourceKey == "" || f.DestinationKey == "" {
			return fmt.Errorf("follows[%d]: source and destination are required", i)
		}
	}
	return nil
}

// AuthorKeys returns every public key the fixture mentions as an author or
// an event author, sorted.
func (fx *Fixture) AuthorKeys() []string {
	set := map[string]bool{}
	for _, a := range fx.Authors {
		set[a.PublicKey] = true
	}
	for _, e := range fx.Events {
		set[e.AuthorKey] = true
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FollowsBySource groups the explicit follows by source key.
func (fx *Fixture) FollowsBySource() map[string][]model.Follow {
	out := make(map[string][]model.Follow)
	for _, f := range fx.Follows {
		out[f.SourceKey] = append(out[f.SourceKey], f)
	}
	return out
}
