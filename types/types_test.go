package types

import (
	"testing"
)

func TestKindValid(t *testing.T) {
	cases := map[Kind]bool{
		KindN:   true,
		KindSig: true,
		"":      false,
		"nsig":  false,
		"N":     false,
	}
	for kind, want := range cases {
		if got := kind.Valid(); got != want {
			t.Errorf("Kind(%q).Valid() = %v, want %v", kind, got, want)
		}
	}
}

func TestKindsOrder(t *testing.T) {
	if len(Kinds) != 2 || Kinds[0] != KindN || Kinds[1] != KindSig {
		t.Fatalf("Kinds = %v, want [n sig]", Kinds)
	}
}

func TestSolveRequestChallenges(t *testing.T) {
	req := SolveRequest{N: []string{"n1", "n2"}, Sig: []string{"s1"}}

	if got := req.Challenges(KindN); len(got) != 2 || got[0] != "n1" || got[1] != "n2" {
		t.Errorf("Challenges(n) = %v", got)
	}
	if got := req.Challenges(KindSig); len(got) != 1 || got[0] != "s1" {
		t.Errorf("Challenges(sig) = %v", got)
	}
	if got := req.Challenges("bogus"); got != nil {
		t.Errorf("Challenges(bogus) = %v, want nil", got)
	}
}

func TestNewSolveResponse(t *testing.T) {
	resp := NewSolveResponse()
	if resp.N == nil || resp.Sig == nil {
		t.Fatal("maps should be non-nil")
	}
	if len(resp.N) != 0 || len(resp.Sig) != 0 {
		t.Fatal("maps should be empty")
	}

	resp.Map(KindN)["a"] = "b"
	if resp.N["a"] != "b" {
		t.Error("Map(n) should alias N")
	}
	resp.Map(KindSig)["c"] = "d"
	if resp.Sig["c"] != "d" {
		t.Error("Map(sig) should alias Sig")
	}
	if resp.Map("bogus") != nil {
		t.Error("Map(bogus) should be nil")
	}
}
