// Copyright 2025 James Ross

// Package param implements the Grassroots parameter model: a polymorphic, validated, JSON-round-trippable representation
// of service inputs.
package param

import (
	"encoding/json"
	"fmt"
)

// Type is the grassroots_type discriminator carried on the wire.
type Type string

const (
	TypeBoolean     Type = "boolean"
	TypeSignedInt   Type = "signed_int"
	TypeUnsignedInt Type = "unsigned_int"
	TypeReal        Type = "real"
	TypeString      Type = "string"
	TypeChar        Type = "char"
	TypeResource    Type = "resource"
	TypeJSON        Type = "json"
	TypeTime        Type = "time"
	TypeTimeArray   Type = "time_array"
	TypeStringArray Type = "string_array"
)

// Level is the parameter's UI/API exposure tier.
type Level string

const (
	LevelBasic        Level = "basic"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Option is one entry of an enumerated option list.
type Option struct {
	Value       interface{} `json:"value"`
	Description string      `json:"description"`
}

// Bounds is an inclusive [Min, Max] range for ordered types.
type Bounds struct {
	Min interface{} `json:"min"`
	Max interface{} `json:"max"`
}

// Resource is a DataResource: a URI-like handle naming a service input.
type Resource struct {
	Protocol string `json:"protocol"`
	Value    string `json:"value"`
	Title    string `json:"title,omitempty"`
}

// Parameter is a polymorphic, typed, named value exposed by a service.
//
// Invariants enforced by this type's methods (not by direct field
// access): CurrentValue is either nil or of the declared Type; if
// Bounds is set, CurrentValue and DefaultValue lie within it; Options
// are unique by Value.
type Parameter struct {
	Name         string      `json:"name"`
	DisplayName  string      `json:"display_name"`
	Description  string      `json:"description"`
	Level        Level       `json:"level"`
	GrassrootsType Type      `json:"grassroots_type_info"`
	CurrentValue interface{} `json:"current_value"`
	DefaultValue interface{} `json:"default_value"`
	Bounds       *Bounds     `json:"bounds,omitempty"`
	Options      []Option    `json:"options,omitempty"`
	ParamSetKey  string      `json:"param_set_key,omitempty"`
}

// Allocate constructs a Parameter, validating the supplied current
// value before returning it.
func Allocate(t Type, name, display, description string, level Level, defaultValue, currentValue interface{}) (*Parameter, error) {
	p := &Parameter{
		Name:           name,
		DisplayName:    display,
		Description:    description,
		Level:          level,
		GrassrootsType: t,
		DefaultValue:   defaultValue,
	}
	if err := p.SetCurrent(currentValue); err != nil {
		return nil, err
	}
	return p, nil
}

// GetCurrent returns the current value, or nil if unset.
func (p *Parameter) GetCurrent() interface{} { return p.CurrentValue }

// SetCurrent validates and assigns the current value: nil is always "unset"; ordered types are checked
// against Bounds; discrete types with declared Options must match one.
func (p *Parameter) SetCurrent(v interface{}) error {
	if v == nil {
		p.CurrentValue = nil
		return nil
	}
	if err := p.validate(v); err != nil {
		return err
	}
	p.CurrentValue = v
	return nil
}

// GetDefault returns the default value.
func (p *Parameter) GetDefault() interface{} { return p.DefaultValue }

// SetDefault validates and assigns the default value.
func (p *Parameter) SetDefault(v interface{}) error {
	if v == nil {
		p.DefaultValue = nil
		return nil
	}
	if err := p.validate(v); err != nil {
		return err
	}
	p.DefaultValue = v
	return nil
}

func (p *Parameter) validate(v interface{}) error {
	if p.Bounds != nil && isOrdered(p.GrassrootsType) {
		if !withinBounds(v, p.Bounds) {
			return &ValidationError{Parameter: p.Name, Type: p.GrassrootsType, Messages: []string{fmt.Sprintf("value %v out of bounds [%v, %v]", v, p.Bounds.Min, p.Bounds.Max)}}
		}
	}
	if len(p.Options) > 0 && isDiscrete(p.GrassrootsType) {
		found := false
		for _, o := range p.Options {
			if optionsEqual(o.Value, v) {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{Parameter: p.Name, Type: p.GrassrootsType, Messages: []string{fmt.Sprintf("value %v is not one of the declared options", v)}}
		}
	}
	return nil
}

// ValidationError is the per-parameter error shape returned when a
// value fails bounds or options validation: `{grassroots_type, errors:[...]}`.
type ValidationError struct {
	Parameter string
	Type      Type
	Messages  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %v", e.Parameter, e.Messages)
}

// MarshalJSON implements json.Marshal, per the ValidationError's
// `{grassroots_type, errors:[...]}` wire shape.
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GrassrootsType Type     `json:"grassroots_type"`
		Errors         []string `json:"errors"`
	}{e.Type, e.Messages})
}

// SetBounds sets inclusive bounds; only meaningful for ordered types.
func (p *Parameter) SetBounds(min, max interface{}) error {
	if !isOrdered(p.GrassrootsType) {
		return fmt.Errorf("parameter %q: type %s does not support bounds", p.Name, p.GrassrootsType)
	}
	p.Bounds = &Bounds{Min: min, Max: max}
	return nil
}

// IsBounded reports whether bounds are set.
func (p *Parameter) IsBounded() bool { return p.Bounds != nil }

// GetBounds returns the bounds, or nil.
func (p *Parameter) GetBounds() *Bounds { return p.Bounds }

// AddOption appends an option, rejecting a duplicate value.
func (p *Parameter) AddOption(value interface{}, description string) error {
	for _, o := range p.Options {
		if optionsEqual(o.Value, value) {
			return fmt.Errorf("parameter %q: duplicate option value %v", p.Name, value)
		}
	}
	p.Options = append(p.Options, Option{Value: value, Description: description})
	return nil
}

func isOrdered(t Type) bool {
	switch t {
	case TypeSignedInt, TypeUnsignedInt, TypeReal, TypeTime:
		return true
	default:
		return false
	}
}

func isDiscrete(t Type) bool {
	switch t {
	case TypeString, TypeChar, TypeSignedInt, TypeUnsignedInt:
		return true
	default:
		return false
	}
}

func optionsEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func withinBounds(v interface{}, b *Bounds) bool {
	vf, ok := toFloat(v)
	if !ok {
		return true
	}
	if b.Min != nil {
		if minf, ok := toFloat(b.Min); ok && vf < minf {
			return false
		}
	}
	if b.Max != nil {
		if maxf, ok := toFloat(b.Max); ok && vf > maxf {
			return false
		}
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
