// Copyright 2025 James Ross
package registry

import (
	"sort"
	"strings"

	"github.com/TGAC/grassroots-core/internal/param"
	"github.com/TGAC/grassroots-core/internal/service"
)

// SortByName orders services by name, stable and case-insensitive.
func SortByName(services []*service.Service) []*service.Service {
	out := make([]*service.Service, len(services))
	copy(out, services)
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// ByNameOrAlias returns the service matching name exactly, else by
// alias; nil if none match. Returns at most one service.
func ByNameOrAlias(services []*service.Service, name string) *service.Service {
	for _, s := range services {
		if s.Name == name {
			return s
		}
	}
	for _, s := range services {
		if s.Alias == name {
			return s
		}
	}
	return nil
}

// ByResource returns every service whose MatchByResource callback
// succeeds against resource, sorted by name.
func ByResource(services []*service.Service, resource param.Resource) []*service.Service {
	var matched []*service.Service
	for _, s := range services {
		if _, ok := s.MatchByResource(resource); ok {
			matched = append(matched, s)
		}
	}
	return SortByName(matched)
}

// ByPluginName returns every service backed by the named plugin, used
// during reference loading.
func ByPluginName(services []*service.Service, pluginName string) []*service.Service {
	var matched []*service.Service
	for _, s := range services {
		if s.PluginRef == pluginName {
			matched = append(matched, s)
		}
	}
	return SortByName(matched)
}

// ByPluginAndOperation returns the service built from a specific
// plugin+operation pair during reference loading (operation ==
// Service.Name, per BuildServicesFromStub).
func ByPluginAndOperation(services []*service.Service, pluginName, operation string) *service.Service {
	for _, s := range services {
		if s.PluginRef == pluginName && s.Name == operation {
			return s
		}
	}
	return nil
}

// ByKeyword returns every service exposing a keyword-typed parameter.
func ByKeyword(services []*service.Service, user interface{}) []*service.Service {
	var matched []*service.Service
	for _, s := range services {
		if s.HasKeywordParameter(user) {
			matched = append(matched, s)
		}
	}
	return SortByName(matched)
}
