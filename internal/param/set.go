// Copyright 2025 James Ross
package param

import "fmt"

// Group is a named partition of a ParameterSet's parameters.
type Group struct {
	Name       string       `json:"name"`
	Parameters []*Parameter `json:"parameters"`
}

// Set is the ordered sequence of Parameters, partitioned into named
// Groups. Group names are unique within a set.
type Set struct {
	groups    []*Group
	byName    map[string]*Group
	allParams []*Parameter
}

// NewSet constructs an empty ParameterSet.
func NewSet() *Set {
	return &Set{byName: make(map[string]*Group)}
}

// AddGroup creates a new, empty group. Returns an error if the name is
// already in use within this set.
func (s *Set) AddGroup(name string) (*Group, error) {
	if _, exists := s.byName[name]; exists {
		return nil, fmt.Errorf("param: group %q already exists in set", name)
	}
	g := &Group{Name: name}
	s.groups = append(s.groups, g)
	s.byName[name] = g
	return g, nil
}

// AddParameter appends a parameter to the named group, creating the
// group if it does not yet exist. Returns an error if a parameter of the
// same name already exists anywhere in the set — parameter names, like
// group names, must be unique within a set.
func (s *Set) AddParameter(group string, p *Parameter) error {
	if existing := s.Get(p.Name); existing != nil {
		return fmt.Errorf("param: parameter %q already exists in set", p.Name)
	}
	g, ok := s.byName[group]
	if !ok {
		var err error
		if g, err = s.AddGroup(group); err != nil {
			return err
		}
	}
	g.Parameters = append(g.Parameters, p)
	s.allParams = append(s.allParams, p)
	return nil
}

// Groups returns the ordered list of groups.
func (s *Set) Groups() []*Group { return s.groups }

// Parameters returns every parameter in the set, in insertion order,
// irrespective of group.
func (s *Set) Parameters() []*Parameter { return s.allParams }

// Get returns the named parameter, or nil if not present.
func (s *Set) Get(name string) *Parameter {
	for _, p := range s.allParams {
		if p.Name == name {
			return p
		}
	}
	return nil
}
