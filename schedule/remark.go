// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package schedule

import (
	"strings"

	"golang.org/x/exp/maps"
)

// RemarkTable resolves remark codes from the timetable into human-readable text.
type RemarkTable map[string]string

func DefaultRemarks() RemarkTable {
	return RemarkTable{
		"1": "Ordinary ferry service and freight service is allowed",
		"2": "Ordinary ferry service and freight service is allowed and via Peng Chau for alighting passengers only",
		"3": "Saturdays only and freight service is allowed (except public holidays)",
	}
}

// With returns a copy of the table, with entries from extra added or overridden.
func (t RemarkTable) With(extra map[string]string) RemarkTable {
	merged := maps.Clone(t)
	if merged == nil {
		merged = make(RemarkTable, len(extra))
	}
	maps.Copy(merged, extra)
	return merged
}

// Lookup returns the text for a code, or an empty string for unknown codes.
func (t RemarkTable) Lookup(code string) string {
	return t[strings.TrimSpace(code)]
}
