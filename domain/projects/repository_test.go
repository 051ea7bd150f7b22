package projects

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			code: "23505",
			want: false,
		},
		{
			name: "error contains code directly",
			err:  errors.New("ERROR: duplicate key value violates unique constraint (23505)"),
			code: "23505",
			want: true,
		},
		{
			name: "error contains SQLSTATE prefix",
			err:  errors.New("ERROR: SQLSTATE 23505 duplicate key value"),
			code: "23505",
			want: true,
		},
		{
			name: "error does not contain code",
			err:  errors.New("some other error"),
			code: "23505",
			want: false,
		},
		{
			name: "empty error message",
			err:  errors.New(""),
			code: "23505",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := containsErrorCode(tt.err, tt.code)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unique violation error with SQLSTATE",
			err:  errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"),
			want: true,
		},
		{
			name: "unique violation error with code only",
			err:  errors.New("ERROR: duplicate key 23505"),
			want: true,
		},
		{
			name: "other error",
			err:  errors.New("connection refused"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isUniqueViolation(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsValidUUID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{name: "valid UUID lowercase", id: "550e8400-e29b-41d4-a716-446655440000", want: true},
		{name: "valid UUID uppercase", id: "550E8400-E29B-41D4-A716-446655440000", want: true},
		{name: "empty string", id: "", want: false},
		{name: "too short", id: "550e8400-e29b-41d4-a716", want: false},
		{name: "too long", id: "550e8400-e29b-41d4-a716-446655440000-extra", want: false},
		{name: "missing hyphens", id: "550e8400e29b41d4a716446655440000", want: false},
		{name: "invalid characters", id: "550e8400-e29b-41d4-a716-44665544000g", want: false},
		{name: "spaces", id: "550e8400 e29b 41d4 a716 446655440000", want: false},
		{name: "nil UUID", id: "00000000-0000-0000-0000-000000000000", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isValidUUID(tt.id)
			assert.Equal(t, tt.want, got)
		})
	}
}
