package linksign

import "testing"

func TestSignIsDeterministic(t *testing.T) {
	s := New("secret")
	a := s.Sign("abc123", 2, "tt0903747", "show.s01e01.mkv")
	b := s.Sign("abc123", 2, "tt0903747", "show.s01e01.mkv")
	if a != b {
		t.Fatalf("signature should be deterministic: %q != %q", a, b)
	}
	if len(a) != signatureLen {
		t.Fatalf("signature length = %d, want %d", len(a), signatureLen)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	s := New("secret")
	sig := s.Sign("abc123", 2, "tt0903747", "show.s01e01.mkv")
	if !s.Verify("abc123", 2, "tt0903747", "show.s01e01.mkv", sig) {
		t.Fatalf("valid signature should verify")
	}
}

func TestVerifyNormalizesReferenceCase(t *testing.T) {
	s := New("secret")
	sig := s.Sign("ABC123", 2, "tt0903747", "file.mkv")
	if !s.Verify("abc123", 2, "tt0903747", "file.mkv", sig) {
		t.Fatalf("reference comparison should be case-insensitive")
	}
}

// Mutating any signed field must flip verification to failure.
func TestVerifyRejectsMutatedFields(t *testing.T) {
	s := New("secret")
	sig := s.Sign("abc123", 2, "tt0903747", "file.mkv")

	tests := []struct {
		name      string
		reference string
		fileIndex int
		contentID string
		filename  string
	}{
		{"mutated reference", "abc124", 2, "tt0903747", "file.mkv"},
		{"mutated file index", "abc123", 3, "tt0903747", "file.mkv"},
		{"mutated content id", "abc123", 2, "tt0903748", "file.mkv"},
		{"mutated filename", "abc123", 2, "tt0903747", "other.mkv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.Verify(tt.reference, tt.fileIndex, tt.contentID, tt.filename, sig) {
				t.Fatalf("mutated field should fail verification")
			}
		})
	}
}

func TestVerifyRejectsMalformedSignatures(t *testing.T) {
	s := New("secret")
	for _, sig := range []string{"", "short", "0123456789abcdef0123456789abcdef00"} {
		if s.Verify("abc123", 0, "tt1", "f.mkv", sig) {
			t.Fatalf("signature %q should be rejected", sig)
		}
	}
}

func TestDifferentSecretsDisagree(t *testing.T) {
	a := New("secret-a")
	b := New("secret-b")
	sig := a.Sign("abc123", 0, "tt1", "f.mkv")
	if b.Verify("abc123", 0, "tt1", "f.mkv", sig) {
		t.Fatalf("signature from another secret should not verify")
	}
}
