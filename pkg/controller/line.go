// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"regexp"
	"strconv"
	"strings"
)

// LineKind is the wire shape of a response line
type LineKind int

const (
	// LineText is anything that is neither tagged nor pushed
	LineText LineKind = iota

	// LineTagged is a bracketed [TAG:value] line
	LineTagged

	// LinePush starts with one of PushPrefixes
	LinePush
)

func (k LineKind) String() string {
	switch k {
	case LineTagged:
		return "tagged"
	case LinePush:
		return "push"
	default:
		return "text"
	}
}

var taggedLine = regexp.MustCompile(`^\[([^:\[\]]+):(.*)\]$`)

// ClassifyLine determines a line's shape. For tagged lines tag and value are
// the bracket contents split at the first colon; for push lines tag is the
// prefix without its colon and value is the rest, trimmed. Text lines return
// the line itself as value.
func ClassifyLine(line string) (kind LineKind, tag string, value string) {
	if m := taggedLine.FindStringSubmatch(line); m != nil {
		return LineTagged, m[1], m[2]
	}
	for _, prefix := range PushPrefixes {
		if strings.HasPrefix(line, prefix) {
			return LinePush, strings.TrimSuffix(prefix, ":"), strings.TrimSpace(line[len(prefix):])
		}
	}
	return LineText, "", line
}

// parseErrorLine extracts N from "error:N"
func parseErrorLine(line string) (int, bool) {
	if !strings.HasPrefix(line, ackErrorTag) {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(line[len(ackErrorTag):]))
	if err != nil {
		return -1, true
	}
	return code, true
}

// isBootBanner reports whether line is ESP32 ROM reset output
func isBootBanner(line string) bool {
	for _, marker := range bootMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
