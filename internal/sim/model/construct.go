package model

import "fmt"

type ConstructType string

const (
	ManaWell    ConstructType = "mana_well"
	LifeGrove   ConstructType = "life_grove"
	ArcaneForge ConstructType = "arcane_forge"
	AetherSpire ConstructType = "aether_spire"
)

var ConstructTypes = [4]ConstructType{ManaWell, LifeGrove, ArcaneForge, AetherSpire}

// Output is the single resource a construct type produces.
func (c ConstructType) Output() Resource {
	switch c {
	case ManaWell:
		return Mana
	case LifeGrove:
		return Vitality
	case ArcaneForge:
		return Arcanum
	case AetherSpire:
		return Aether
	}
	return ""
}

func ParseConstructType(s string) (ConstructType, error) {
	for _, c := range ConstructTypes {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown construct type %q", s)
}

type ConstructStatus string

const (
	StatusInventory  ConstructStatus = "inventory"
	StatusInstalling ConstructStatus = "installing"
	StatusActive     ConstructStatus = "active"
	StatusDamaged    ConstructStatus = "damaged"
)

const (
	MinConstructLevel = 1
	MaxConstructLevel = 3

	MinEfficiency = 0.0
	MaxEfficiency = 1.5
)
