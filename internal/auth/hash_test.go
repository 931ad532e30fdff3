package auth

import "testing"

func TestHashSecret_Deterministic(t *testing.T) {
	t.Parallel()

	a := HashSecret("sk_live_example-secret")
	b := HashSecret("sk_live_example-secret")

	if a != b {
		t.Errorf("same input produced different digests: %s vs %s", a, b)
	}
}

func TestHashSecret_HexLength(t *testing.T) {
	t.Parallel()

	digest := HashSecret("anything")
	if len(digest) != 64 {
		t.Errorf("digest should be 64 hex chars, got %d", len(digest))
	}
	for _, c := range digest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("digest contains non-hex character %q", c)
		}
	}
}

func TestHashSecret_DistinctInputs(t *testing.T) {
	t.Parallel()

	if HashSecret("a") == HashSecret("b") {
		t.Error("distinct inputs produced the same digest")
	}
}

func TestSecretsEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", "12345", "12345", true},
		{"different", "12345", "12346", false},
		{"different lengths", "1234", "12345", false},
		{"both empty", "", "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SecretsEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("SecretsEqual(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
