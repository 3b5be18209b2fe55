package model

import (
	"strings"
	"testing"
)

func TestValidateOrg(t *testing.T) {
	valid := []string{"acme", "acme-corp", "acme_2", "Acme.io"}
	for _, org := range valid {
		if err := ValidateOrg(org); err != nil {
			t.Errorf("%q: expected valid, got %v", org, err)
		}
	}

	invalid := []string{
		"",
		"acme:other",
		"acme other",
		"acme/../other",
		"\x00acme",
		strings.Repeat("a", 65),
	}
	for _, org := range invalid {
		if err := ValidateOrg(org); !IsValidation(err) {
			t.Errorf("%q: expected validation error, got %v", org, err)
		}
	}
}
