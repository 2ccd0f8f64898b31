package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRole(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{name: "user", role: RoleUser, want: true},
		{name: "assistant", role: RoleAssistant, want: true},
		{name: "system", role: RoleSystem, want: true},
		{name: "unknown role rejected", role: Role("moderator"), want: false},
		{name: "empty role rejected", role: Role(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidRole(tt.role))
		})
	}
}

func TestValidateMessage(t *testing.T) {
	require.NoError(t, ValidateMessage("hello"))

	err := ValidateMessage("   ")
	require.ErrorIs(t, err, ErrInvalidInput)

	err = ValidateMessage(strings.Repeat("x", MaxMessageLength+1))
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestValidateMessageAcceptsMaxLength(t *testing.T) {
	require.NoError(t, ValidateMessage(strings.Repeat("x", MaxMessageLength)))
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "empty allowed", id: ""},
		{name: "uuid", id: "00000000-0000-0000-0000-000000000001"},
		{name: "prefixed id", id: "20260228T101500-abc_def.0"},
		{name: "colon separator", id: "proj:session-1"},
		{name: "whitespace rejected", id: "session 1", wantErr: true},
		{name: "path traversal rejected", id: "../etc/passwd", wantErr: true},
		{name: "too long rejected", id: strings.Repeat("a", MaxIdentifierRunes+1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}
