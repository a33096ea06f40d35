// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package schedule

import (
	"regexp"
	"strings"

	"golang.org/x/exp/maps"
)

// Direction is one of the two opposing directions of the route.
type Direction int

const (
	CentralToMuiWo Direction = iota
	MuiWoToCentral
)

// Directions lists all directions, in the order results are reported.
var Directions = [...]Direction{CentralToMuiWo, MuiWoToCentral}

const (
	PierCentral = "Central"
	PierMuiWo   = "Mui Wo"
)

func (d Direction) From() string {
	if d == MuiWoToCentral {
		return PierMuiWo
	}
	return PierCentral
}

func (d Direction) To() string {
	if d == MuiWoToCentral {
		return PierCentral
	}
	return PierMuiWo
}

func (d Direction) String() string { return d.From() + " to " + d.To() }

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// ParseDirectionName recognizes the canonical name returned by Direction.String.
func ParseDirectionName(x string) (Direction, bool) {
	for _, d := range Directions {
		if strings.EqualFold(strings.TrimSpace(x), d.String()) {
			return d, true
		}
	}
	return 0, false
}

// AliasTable lists the spellings of every direction. Matching is done on a canonical form
// (see canonicalDirectionText), so one alias covers e.g. "Central - Mui Wo", "Central→Mui Wo"
// and "Central to Mui Wo" alike.
type AliasTable map[Direction][]string

func DefaultAliases() AliasTable {
	return AliasTable{
		CentralToMuiWo: {"Central to Mui Wo", "Central-Mui Wo", "Central → Mui Wo", "Central->Mui Wo"},
		MuiWoToCentral: {"Mui Wo to Central", "Mui Wo-Central", "Mui Wo → Central", "Mui Wo->Central"},
	}
}

// With returns a copy of the table with extra aliases appended.
func (t AliasTable) With(extra map[Direction][]string) AliasTable {
	merged := maps.Clone(t)
	if merged == nil {
		merged = make(AliasTable)
	}
	for d, aliases := range extra {
		merged[d] = append(append([]string(nil), merged[d]...), aliases...)
	}
	return merged
}

var (
	directionArrows = strings.NewReplacer("→", "-", "->", "-", "–", "-", "=>", "-")
	toPhrase        = regexp.MustCompile(`\s+to\s+`)
	dashSpacing     = regexp.MustCompile(`\s*-\s*`)
)

func canonicalDirectionText(x string) string {
	x = strings.Join(strings.Fields(strings.ToLower(x)), " ")
	x = directionArrows.Replace(x)
	x = toPhrase.ReplaceAllString(x, "-")
	return dashSpacing.ReplaceAllString(x, "-")
}

// Normalize maps free-form direction text onto a Direction. Text matching no alias,
// or aliases of both directions, is rejected.
func (t AliasTable) Normalize(x string) (Direction, bool) {
	text := canonicalDirectionText(x)
	if text == "" {
		return 0, false
	}

	found := false
	var match Direction

	for _, d := range Directions {
		for _, alias := range t[d] {
			a := canonicalDirectionText(alias)
			if a == "" || !strings.Contains(text, a) {
				continue
			}

			if found && match != d {
				return 0, false
			}
			found, match = true, d
			break
		}
	}

	return match, found
}
