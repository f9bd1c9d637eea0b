// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"strings"

	"github.com/holomush/holoscript/internal/host"
)

var priorityKeywords = buildPriorityKeywords()

var permissionDefaultKeywords = map[string]host.PermissionDefault{
	"TRUE":   host.DefaultTrue,
	"FALSE":  host.DefaultFalse,
	"OP":     host.DefaultOp,
	"NOT_OP": host.DefaultNotOp,
}

func buildPriorityKeywords() map[string]host.Priority {
	out := make(map[string]host.Priority)
	for _, p := range host.Priorities() {
		out[normalizeKeyword(p.String())] = p
	}
	return out
}

// normalizeKeyword maps "not-op", "Not_Op" and ":not-op" to "NOT_OP".
func normalizeKeyword(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), ":")
	return strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
}

// ParsePriority maps a loosely typed tier name to a host priority.
func ParsePriority(namespace, keyword string) (host.Priority, error) {
	if keyword == "" {
		return host.PriorityNormal, nil
	}
	if p, ok := priorityKeywords[normalizeKeyword(keyword)]; ok {
		return p, nil
	}
	return 0, ErrInvalidRegistration(namespace, "invalid priority %q", keyword)
}

// ParsePermissionDefault maps a loosely typed default name to a host default.
func ParsePermissionDefault(namespace, keyword string) (host.PermissionDefault, error) {
	if keyword == "" {
		return host.DefaultOp, nil
	}
	if d, ok := permissionDefaultKeywords[normalizeKeyword(keyword)]; ok {
		return d, nil
	}
	return 0, ErrInvalidRegistration(namespace, "invalid permission default %q", keyword)
}
