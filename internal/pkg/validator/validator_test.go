package validator

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIP(t *testing.T) {
	assert.True(t, IsValidIP("127.0.0.1"))
	assert.True(t, IsValidIP("::1"))
	assert.False(t, IsValidIP(""))
	assert.Equal(t, "fe80::1", NormalizeIP("fe80::1%eth0"))
	assert.Equal(t, "0.0.0.0", GetIPOrDefault("not-an-ip", "0.0.0.0"))
}

func TestFileNameRule(t *testing.T) {
	v := validator.New()
	require.NoError(t, Register(v))

	type req struct {
		Name string `validate:"required,filename"`
	}

	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"plain", "report.pdf", true},
		{"spaces", "my report.pdf", true},
		{"unicode", "报告.pdf", true},
		{"blank", "   ", false},
		{"slash", "a/b.txt", false},
		{"backslash", `a\b.txt`, false},
		{"dot dot", "..", false},
		{"control", "a\x01b", false},
		{"too long", strings.Repeat("a", MaxFileNameLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(req{Name: tt.value})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
