package types

import "context"

// Kind tags a challenge token with the transformation it needs.
type Kind string

const (
	// KindN is the throttling-mitigation "n" challenge.
	KindN Kind = "n"
	// KindSig is the signature cipher challenge.
	KindSig Kind = "sig"
)

// Kinds lists every challenge kind in batch order.
var Kinds = []Kind{KindN, KindSig}

// Valid reports whether k is a known challenge kind.
func (k Kind) Valid() bool {
	return k == KindN || k == KindSig
}

// Challenge is one opaque token plus its kind.
type Challenge struct {
	Kind  Kind
	Token string
}

// SolveRequest describes one batch of challenges against a single player script.
//
// Exactly one of Player and Preprocessed must be set. PlayerID is an optional
// version key; when empty, callers that need one derive it from the content.
type SolveRequest struct {
	Player             string
	Preprocessed       string
	PlayerID           string
	N                  []string
	Sig                []string
	OutputPreprocessed bool
}

// Challenges returns the tokens of the given kind.
func (r SolveRequest) Challenges(kind Kind) []string {
	switch kind {
	case KindN:
		return r.N
	case KindSig:
		return r.Sig
	}
	return nil
}

// SolveResponse holds the resolved values of one batch.
//
// A token missing from a map was not resolved; it is never represented by an
// empty string.
type SolveResponse struct {
	N            map[string]string
	Sig          map[string]string
	Preprocessed string
}

// NewSolveResponse returns a response with empty, non-nil maps.
func NewSolveResponse() *SolveResponse {
	return &SolveResponse{N: map[string]string{}, Sig: map[string]string{}}
}

// Map returns the solution map of the given kind.
func (r *SolveResponse) Map(kind Kind) map[string]string {
	switch kind {
	case KindN:
		return r.N
	case KindSig:
		return r.Sig
	}
	return nil
}

// Solver is the contract shared by the local sandbox and remote solvers.
type Solver interface {
	Solve(ctx context.Context, req SolveRequest) (*SolveResponse, error)
}
