package token

import "testing"

func TestNewProducesDistinctHexSecrets(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		secret, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if len(secret) != SecretLen {
			t.Fatalf("secret length = %d, want %d", len(secret), SecretLen)
		}
		for _, r := range secret {
			if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
				t.Fatalf("secret %q contains non-hex rune %q", secret, r)
			}
		}
		if _, dup := seen[secret]; dup {
			t.Fatalf("duplicate secret generated: %s", secret)
		}
		seen[secret] = struct{}{}
	}
}

func TestEqual(t *testing.T) {
	secret, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	other, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		name      string
		presented string
		secret    string
		want      bool
	}{
		{"match", secret, secret, true},
		{"mismatch", other, secret, false},
		{"empty presented", "", secret, false},
		{"empty secret", secret, "", false},
		{"both empty", "", "", false},
		{"prefix", secret[:SecretLen-2], secret, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.presented, tc.secret); got != tc.want {
				t.Fatalf("Equal = %v, want %v", got, tc.want)
			}
		})
	}
}
