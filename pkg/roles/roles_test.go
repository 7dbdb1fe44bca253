package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		expected bool
	}{
		{Staff, Staff, true},
		{Staff, Pharmacist, false},
		{Pharmacist, Staff, true},
		{Pharmacist, Pharmacist, true},
		{Pharmacist, Admin, false},
		{Admin, Pharmacist, true},
		{Role("nurse"), Staff, false},
		{Admin, Role("root"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"->"+string(tt.required), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.role.HasPermission(tt.required))
		})
	}
}
