// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/pkg/errutil"
)

func TestParsePriority(t *testing.T) {
	tests := []struct {
		keyword string
		want    host.Priority
	}{
		{"", host.PriorityNormal},
		{"lowest", host.PriorityLowest},
		{"LOW", host.PriorityLow},
		{"Normal", host.PriorityNormal},
		{":high", host.PriorityHigh},
		{" highest ", host.PriorityHighest},
		{"monitor", host.PriorityMonitor},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			got, err := ParsePriority("greet", tt.keyword)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePriority_Unknown(t *testing.T) {
	_, err := ParsePriority("greet", "urgent")
	errutil.AssertErrorCode(t, err, CodeInvalidRegistration)
	errutil.AssertErrorContext(t, err, "namespace", "greet")
}

func TestParsePermissionDefault(t *testing.T) {
	tests := []struct {
		keyword string
		want    host.PermissionDefault
	}{
		{"", host.DefaultOp},
		{"true", host.DefaultTrue},
		{"FALSE", host.DefaultFalse},
		{"op", host.DefaultOp},
		{"not-op", host.DefaultNotOp},
		{"not_op", host.DefaultNotOp},
		{":Not-Op", host.DefaultNotOp},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			got, err := ParsePermissionDefault("greet", tt.keyword)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePermissionDefault_Unknown(t *testing.T) {
	_, err := ParsePermissionDefault("greet", "sometimes")
	errutil.AssertErrorCode(t, err, CodeInvalidRegistration)
}
