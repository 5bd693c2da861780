package handlers

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name       string
		req        interface{}
		wantFields []string
	}{
		{"valid login", LoginRequest{Identifier: "alice", Password: "pw"}, nil},
		{"email identifier", LoginRequest{Identifier: "alice@example.com", Password: "pw"}, nil},
		{"missing both", LoginRequest{}, []string{"identifier", "password"}},
		{"embedded space", LoginRequest{Identifier: "al ice", Password: "pw"}, []string{"identifier"}},
		{"control character", LoginRequest{Identifier: "alice\x00", Password: "pw"}, []string{"identifier"}},
		{"too long", LoginRequest{Identifier: strings.Repeat("a", 256), Password: "pw"}, []string{"identifier"}},
		{"valid key", ResetPasswordRequest{Key: "AbC-_09=", Password: "pw"}, nil},
		{"key outside alphabet", ResetPasswordRequest{Key: "abc+/def", Password: "pw"}, []string{"key"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected *ValidationError, got %v", err)
			var got []string
			for _, f := range ve.Fields {
				got = append(got, f.Field)
				assert.NotEmpty(t, f.Message)
			}
			assert.Equal(t, tt.wantFields, got)
		})
	}
}
