// Copyright 2025 James Ross
package param

import (
	"encoding/json"
	"fmt"
)

// CustomDecoder is the owning-service hook consulted before the default
// from-json reconstruction.
type CustomDecoder func(raw json.RawMessage) (*Parameter, bool, error)

// wireParameter mirrors the stable JSON field names clients depend on:
// current_value, default_value, min, max, options, grassroots_type_info,
// name, display_name, description, level, param_set_key.
type wireParameter struct {
	Name           string          `json:"name"`
	DisplayName    string          `json:"display_name"`
	Description    string          `json:"description,omitempty"`
	Level          Level           `json:"level,omitempty"`
	GrassrootsType Type            `json:"grassroots_type_info"`
	CurrentValue   json.RawMessage `json:"current_value,omitempty"`
	DefaultValue   json.RawMessage `json:"default_value,omitempty"`
	Min            json.RawMessage `json:"min,omitempty"`
	Max            json.RawMessage `json:"max,omitempty"`
	Options        []Option        `json:"options,omitempty"`
	ParamSetKey    string          `json:"param_set_key,omitempty"`
}

// ToJSON renders a Parameter to its wire shape. When concise is true,
// description and param_set_key are omitted (a compact form intended
// for embedding many parameters in a listing response).
func ToJSON(p *Parameter, concise bool) ([]byte, error) {
	w := wireParameter{
		Name:           p.Name,
		DisplayName:    p.DisplayName,
		Level:          p.Level,
		GrassrootsType: p.GrassrootsType,
		Options:        p.Options,
	}
	if !concise {
		w.Description = p.Description
		w.ParamSetKey = p.ParamSetKey
	}
	var err error
	if w.CurrentValue, err = marshalValue(p.CurrentValue); err != nil {
		return nil, err
	}
	if w.DefaultValue, err = marshalValue(p.DefaultValue); err != nil {
		return nil, err
	}
	if p.Bounds != nil {
		if w.Min, err = marshalValue(p.Bounds.Min); err != nil {
			return nil, err
		}
		if w.Max, err = marshalValue(p.Bounds.Max); err != nil {
			return nil, err
		}
	}
	return json.Marshal(w)
}

func marshalValue(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FromJSON reconstructs a Parameter from its wire shape, dispatching on
// the grassroots_type_info discriminator. If decoder is non-nil it is
// consulted first; a false second return means "not handled, fall
// through to the default reconstruction".
func FromJSON(raw []byte, decoder CustomDecoder) (*Parameter, error) {
	if decoder != nil {
		if p, handled, err := decoder(raw); handled {
			return p, err
		}
	}

	var w wireParameter
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("param: decode: %w", err)
	}
	p := &Parameter{
		Name:           w.Name,
		DisplayName:    w.DisplayName,
		Description:    w.Description,
		Level:          w.Level,
		GrassrootsType: w.GrassrootsType,
		Options:        w.Options,
		ParamSetKey:    w.ParamSetKey,
	}

	cur, err := unmarshalTyped(w.GrassrootsType, w.CurrentValue)
	if err != nil {
		return nil, err
	}
	p.CurrentValue = cur

	def, err := unmarshalTyped(w.GrassrootsType, w.DefaultValue)
	if err != nil {
		return nil, err
	}
	p.DefaultValue = def

	if len(w.Min) > 0 || len(w.Max) > 0 {
		b := &Bounds{}
		if b.Min, err = unmarshalTyped(w.GrassrootsType, w.Min); err != nil {
			return nil, err
		}
		if b.Max, err = unmarshalTyped(w.GrassrootsType, w.Max); err != nil {
			return nil, err
		}
		p.Bounds = b
	}
	return p, nil
}

func unmarshalTyped(t Type, raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch t {
	case TypeBoolean:
		var v bool
		err := json.Unmarshal(raw, &v)
		return v, err
	case TypeSignedInt:
		var v int64
		err := json.Unmarshal(raw, &v)
		return v, err
	case TypeUnsignedInt:
		var v uint64
		err := json.Unmarshal(raw, &v)
		return v, err
	case TypeReal:
		var v float64
		err := json.Unmarshal(raw, &v)
		return v, err
	case TypeString, TypeChar, TypeTime:
		var v string
		err := json.Unmarshal(raw, &v)
		return v, err
	case TypeStringArray, TypeTimeArray:
		var v []string
		err := json.Unmarshal(raw, &v)
		return v, err
	case TypeResource:
		var v Resource
		err := json.Unmarshal(raw, &v)
		return v, err
	case TypeJSON:
		var v interface{}
		err := json.Unmarshal(raw, &v)
		return v, err
	default:
		return nil, fmt.Errorf("param: unknown grassroots_type %q", t)
	}
}
