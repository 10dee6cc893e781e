package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	s := String()
	if !strings.Contains(s, Version) {
		t.Errorf("String() = %q, missing version %q", s, Version)
	}
	if !strings.Contains(s, GitSHA) {
		t.Errorf("String() = %q, missing git SHA %q", s, GitSHA)
	}
	if !strings.Contains(s, BuildTime) {
		t.Errorf("String() = %q, missing build time %q", s, BuildTime)
	}
}
