package model

import "testing"

func TestNormalizeCompanyName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"ACME INC.", "acme-inc"},
		{"  Böhm & Sons!  ", "b-hm-sons"},
		{"already-normalized", "already-normalized"},
		{"a--b__c", "a-b-c"},
		{"...", ""},
		{"", ""},
		{"O'Reilly Media, Inc.", "o-reilly-media-inc"},
	}
	for _, tc := range cases {
		if got := NormalizeCompanyName(tc.in); got != tc.want {
			t.Errorf("NormalizeCompanyName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeCompanyName_Collisions(t *testing.T) {
	// Coarsening is deliberate: suffix punctuation variants share a row.
	a := NormalizeCompanyName("Acme Inc")
	b := NormalizeCompanyName("ACME, INC.")
	if a != b {
		t.Errorf("expected identical identities, got %q and %q", a, b)
	}
}
