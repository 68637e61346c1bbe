package errors

import (
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"generated", "a1B2c3D4e5F6g7", false},
		{"with dash", "chart-1", false},
		{"with underscore", "chart_1", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"path traversal", "../etc", true},
		{"slash", "a/b", true},
		{"space", "a b", true},
		{"null byte", "a\x00b", true},
		{"unicode letter", "é", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeValidation) {
				t.Errorf("ValidateID(%q) code = %s, want VALIDATION", tt.input, GetCode(err))
			}
		})
	}
}

func TestValidateStoreKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "artifact", false},
		{"with extension", "chart.png", false},

		{"empty", "", true},
		{"with path /", "a/b", true},
		{"with path \\", "a\\b", true},
		{"hidden", ".meta", true},
		{"traversal", "a..b", true},
		{"control", "a\nb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStoreKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateStoreKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDimension(t *testing.T) {
	tests := []struct {
		v       int
		wantErr bool
	}{
		{50, false},
		{600, false},
		{4096, false},
		{49, true},
		{4097, true},
		{0, true},
		{-1, true},
	}

	for _, tt := range tests {
		err := ValidateDimension("width", tt.v)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateDimension(%d) error = %v, wantErr %v", tt.v, err, tt.wantErr)
		}
	}
}

func TestValidateCSSColor(t *testing.T) {
	tests := []struct {
		color   string
		wantErr bool
	}{
		{"#fff", false},
		{"#0a0a0aff", false},
		{"rgb(0,0,0)", false},
		{"rgba(0,0,0,0.5)", false},
		{"hsl(221.2, 83.2%, 53.3%)", false},
		{"hsla(0, 0%, 0%, 1)", false},
		{"red", false},

		{"", true},
		{"#zz", true},
		{"123", true},
		{"(red)", true},
		{"red;}</style><script>", true},
		{"rgb(0,0,0);color:red", true},
		{"hsl(0 0% 0% / 50%)", false},
	}

	for _, tt := range tests {
		err := ValidateCSSColor("background", tt.color)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateCSSColor(%q) error = %v, wantErr %v", tt.color, err, tt.wantErr)
		}
	}
}
