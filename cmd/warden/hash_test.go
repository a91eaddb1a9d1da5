// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenauth/warden/internal/auth"
	"github.com/wardenauth/warden/pkg/errutil"
)

func TestReadPassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "newline terminated", input: "hunter2\n", want: "hunter2"},
		{name: "crlf terminated", input: "hunter2\r\n", want: "hunter2"},
		{name: "no newline", input: "hunter2", want: "hunter2"},
		{name: "only first line", input: "first\nsecond\n", want: "first"},
		{name: "keeps inner spaces", input: " pass phrase \n", want: " pass phrase "},
		{name: "empty", input: "", wantErr: true},
		{name: "blank line", input: "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPassword(strings.NewReader(tt.input))
			if tt.wantErr {
				require.ErrorIs(t, err, auth.ErrEmptyPassword)
				errutil.AssertErrorCode(t, err, auth.CodeEmptyPassword)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashCommand(t *testing.T) {
	output, err := execute(t, newHashCmd(), "correct horse\n", "--iterations", "10000")
	require.NoError(t, err)

	credential := strings.TrimSpace(output)
	assert.True(t, strings.HasPrefix(credential, "$pbkdf2-sha256$"), "got %q", credential)

	hasher, err := auth.NewHasher(auth.HasherConfig{Iterations: 10000})
	require.NoError(t, err)
	assert.True(t, hasher.Verify("correct horse", credential))
	assert.False(t, hasher.NeedsRehash(credential))
}

func TestHashCommand_Argon2id(t *testing.T) {
	output, err := execute(t, newHashCmd(), "correct horse\n", "--scheme", "argon2id", "--iterations", "10000")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(output), "$argon2id$"))
}

func TestHashCommand_Errors(t *testing.T) {
	_, err := execute(t, newHashCmd(), "", "--iterations", "10000")
	errutil.AssertErrorCode(t, err, auth.CodeEmptyPassword)

	_, err = execute(t, newHashCmd(), "pw\n", "--iterations", "10")
	require.ErrorIs(t, err, auth.ErrConfiguration)
}
