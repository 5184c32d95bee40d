package topics

import "testing"

func TestMatch(t *testing.T) {
	cases := []struct {
		topic, filter string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/+/c", true},
		{"a/b/c", "a/#", true},
		{"a/b/c", "a/+", false},
		{"a", "#", true},
		{"$SYS/x", "#", false},
		{"$SYS/x", "$SYS/#", true},
		{"a//b", "a/+/b", true},
	}

	for _, c := range cases {
		if got := Match(c.topic, c.filter); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.topic, c.filter, got, c.want)
		}
	}
}

func TestValidFilter(t *testing.T) {
	ok := []string{"a/b/c", "a/+/c", "a/#", "+", "#", "+/+", "$SYS/broker/uptime"}
	for _, f := range ok {
		if err := ValidFilter(f); err != nil {
			t.Errorf("ValidFilter(%q) = %v, want nil", f, err)
		}
	}

	bad := map[string]error{
		"":        ErrEmptyFilter,
		"a/#/b":   ErrMultiLevelNotLast,
		"sport+":  ErrWildcardNotWhole,
		"a/b#":    ErrWildcardNotWhole,
	}
	for f, wantErr := range bad {
		if err := ValidFilter(f); err != wantErr {
			t.Errorf("ValidFilter(%q) = %v, want %v", f, err, wantErr)
		}
	}
}

func TestIsSysTopic(t *testing.T) {
	if !IsSysTopic("$SYS/broker/clients") {
		t.Error("expected $SYS/broker/clients to be a system topic")
	}
	if IsSysTopic("a/b") {
		t.Error("a/b should not be a system topic")
	}
}
