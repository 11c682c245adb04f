package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := map[string]string{
		"(201) 555-0123":   "+12015550123",
		"+44 121 234 5678": "+441212345678",
		"  ":               "",
		"not a number":     "not a number",
	}
	for in, want := range cases {
		if got := NormalizeE164(in); got != want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", in, got, want)
		}
	}
}
