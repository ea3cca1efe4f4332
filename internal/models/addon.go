package models

import (
	"fmt"
	"sort"
	"strings"
)

// AddOnKind tags the category of an add-on selection.
type AddOnKind string

const (
	AddOnSauce       AddOnKind = "sauce"
	AddOnTopping     AddOnKind = "topping"
	AddOnSpiceLevel  AddOnKind = "spice_level"
	AddOnSize        AddOnKind = "size"
	AddOnIceLevel    AddOnKind = "ice_level"
	AddOnInstruction AddOnKind = "instruction"
	AddOnOther       AddOnKind = "other"
)

// AddOn is a single add-on selection on an order line. Key is only set for
// AddOnOther and carries the attribute name the storefront sent.
type AddOn struct {
	Kind  AddOnKind `json:"kind"`
	Value string    `json:"value"`
	Key   string    `json:"key,omitempty"`
}

// Validate checks that the add-on is one of the known categories and has a value.
func (a AddOn) Validate() error {
	switch a.Kind {
	case AddOnSauce, AddOnTopping, AddOnSpiceLevel, AddOnSize, AddOnIceLevel, AddOnInstruction:
		if a.Key != "" {
			return fmt.Errorf("add-on %s must not carry a key", a.Kind)
		}
	case AddOnOther:
		if a.Key == "" {
			return fmt.Errorf("add-on %s requires a key", a.Kind)
		}
	default:
		return fmt.Errorf("unknown add-on kind %q", a.Kind)
	}
	if strings.TrimSpace(a.Value) == "" {
		return fmt.Errorf("add-on %s has an empty value", a.Kind)
	}
	return nil
}

// storefront attribute names mapped to their add-on kind
var addOnAttributes = map[string]AddOnKind{
	"freeSauce":           AddOnSauce,
	"sauce":               AddOnSauce,
	"topping":             AddOnTopping,
	"addOnToppoki":        AddOnTopping,
	"spicyLevel":          AddOnSpiceLevel,
	"size":                AddOnSize,
	"iceLevel":            AddOnIceLevel,
	"specialInstructions": AddOnInstruction,
}

// ParseAddOns converts the storefront's open add-on bag into typed selections.
// Unrecognized attributes are kept as AddOnOther; empty values are dropped.
// "quantity" repeats the line quantity and is ignored.
func ParseAddOns(bag map[string]any) []AddOn {
	if len(bag) == 0 {
		return nil
	}
	keys := make([]string, 0, len(bag))
	for k := range bag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []AddOn
	for _, key := range keys {
		if key == "quantity" {
			continue
		}
		kind, known := addOnAttributes[key]
		for _, value := range flattenAddOnValue(bag[key]) {
			a := AddOn{Kind: kind, Value: value}
			if !known {
				a = AddOn{Kind: AddOnOther, Key: key, Value: value}
			}
			out = append(out, a)
		}
	}
	return out
}

func flattenAddOnValue(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
		return nil
	case []string:
		var out []string
		for _, s := range val {
			out = append(out, flattenAddOnValue(s)...)
		}
		return out
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, flattenAddOnValue(item)...)
		}
		return out
	case bool:
		if val {
			return []string{"true"}
		}
		return nil
	default:
		return []string{fmt.Sprint(val)}
	}
}
