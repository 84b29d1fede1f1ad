package jsc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/types"
)

// wire is the JSON codec for everything crossing the sandbox boundary.
// ConfigStd keeps map keys sorted so encoded envelopes are stable.
var wire = sonic.ConfigStd

// SourceType tells the helper what kind of player text an envelope carries.
type SourceType string

const (
	SourcePlayer       SourceType = "player"
	SourcePreprocessed SourceType = "preprocessed_player"
)

// Envelope is the request handed to the analysis helper.
type Envelope struct {
	Type               SourceType     `json:"type"`
	Player             string         `json:"player,omitempty"`
	PreprocessedPlayer string         `json:"preprocessed_player,omitempty"`
	Requests           []RequestGroup `json:"requests"`
	OutputPreprocessed bool           `json:"output_preprocessed,omitempty"`
}

// RequestGroup is one batch of challenges of a single kind.
type RequestGroup struct {
	Type       types.Kind `json:"type"`
	Challenges []string   `json:"challenges"`
}

// ItemType tags a ResponseItem.
type ItemType string

const (
	ItemResult ItemType = "result"
	ItemError  ItemType = "error"
)

// ResponseItem answers one RequestGroup. It is a two-case union: a result item
// carries Data, an error item carries Error.
type ResponseItem struct {
	Type  ItemType
	Data  map[string]string
	Error string
}

// ResultItem builds a result item.
func ResultItem(data map[string]string) ResponseItem {
	if data == nil {
		data = map[string]string{}
	}
	return ResponseItem{Type: ItemResult, Data: data}
}

// ErrorItem builds an error item.
func ErrorItem(message string) ResponseItem {
	return ResponseItem{Type: ItemError, Error: message}
}

// wireItem keeps data values as pointers so a null solution stays
// distinguishable from an empty string.
type wireItem struct {
	Type  string             `json:"type"`
	Data  map[string]*string `json:"data,omitempty"`
	Error *string            `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (it ResponseItem) MarshalJSON() ([]byte, error) {
	switch it.Type {
	case ItemResult:
		data := it.Data
		if data == nil {
			data = map[string]string{}
		}
		return wire.Marshal(struct {
			Type ItemType          `json:"type"`
			Data map[string]string `json:"data"`
		}{ItemResult, data})
	case ItemError:
		return wire.Marshal(struct {
			Type  ItemType `json:"type"`
			Error string   `json:"error"`
		}{ItemError, it.Error})
	default:
		return nil, fmt.Errorf("unknown response item type %q", it.Type)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Tags other than result and error
// are rejected.
func (it *ResponseItem) UnmarshalJSON(b []byte) error {
	var w wireItem
	if err := wire.Unmarshal(b, &w); err != nil {
		return err
	}
	switch ItemType(w.Type) {
	case ItemResult:
		*it = ResultItem(resolved(w.Data))
	case ItemError:
		msg := ""
		if w.Error != nil {
			msg = *w.Error
		}
		if msg == "" {
			msg = "unspecified error"
		}
		*it = ErrorItem(msg)
	default:
		return fmt.Errorf("unknown response item type %q", w.Type)
	}
	return nil
}

// resolved drops tokens whose solution is null; they stay unresolved.
func resolved(data map[string]*string) map[string]string {
	out := make(map[string]string, len(data))
	for token, v := range data {
		if v != nil {
			out[token] = *v
		}
	}
	return out
}

// Response is the helper's answer to an Envelope.
type Response struct {
	// Type is "result" (or empty) for a normal answer and "error" when the
	// helper failed as a whole.
	Type               string         `json:"type,omitempty"`
	Error              string         `json:"error,omitempty"`
	Responses          []ResponseItem `json:"responses"`
	PreprocessedPlayer string         `json:"preprocessed_player,omitempty"`
}

func invalidRequest(format string, args ...any) *Error {
	return NewError(ErrCodeInvalidRequest, fmt.Sprintf(format, args...), errs.ErrInvalidRequest)
}

// NewEnvelope builds the wire request for req: exactly two groups, n then
// sig, present even when empty.
func NewEnvelope(req types.SolveRequest) (*Envelope, error) {
	env := &Envelope{
		Requests: []RequestGroup{
			{Type: types.KindN, Challenges: req.Challenges(types.KindN)},
			{Type: types.KindSig, Challenges: req.Challenges(types.KindSig)},
		},
		OutputPreprocessed: req.OutputPreprocessed,
	}
	switch {
	case req.Player != "" && req.Preprocessed != "":
		return nil, invalidRequest("both player and preprocessed player given")
	case req.Player != "":
		env.Type, env.Player = SourcePlayer, req.Player
	case req.Preprocessed != "":
		env.Type, env.PreprocessedPlayer = SourcePreprocessed, req.Preprocessed
	default:
		return nil, invalidRequest("no player given")
	}
	return env, nil
}

// Validate checks the envelope against the wire schema and normalizes nil
// challenge lists to empty ones.
func (e *Envelope) Validate() error {
	switch e.Type {
	case SourcePlayer:
		if e.Player == "" || e.PreprocessedPlayer != "" {
			return invalidRequest("type %q needs player and no preprocessed_player", e.Type)
		}
	case SourcePreprocessed:
		if e.PreprocessedPlayer == "" || e.Player != "" {
			return invalidRequest("type %q needs preprocessed_player and no player", e.Type)
		}
	default:
		return invalidRequest("unknown envelope type %q", e.Type)
	}
	if e.Requests == nil {
		return invalidRequest("missing requests")
	}
	for i := range e.Requests {
		if !e.Requests[i].Type.Valid() {
			return invalidRequest("request %d: unknown challenge type %q", i, e.Requests[i].Type)
		}
		if e.Requests[i].Challenges == nil {
			e.Requests[i].Challenges = []string{}
		}
	}
	return nil
}

// EncodeRequest serializes req as a wire envelope.
func EncodeRequest(req types.SolveRequest) ([]byte, error) {
	env, err := NewEnvelope(req)
	if err != nil {
		return nil, err
	}
	return EncodeEnvelope(env)
}

// EncodeEnvelope validates and serializes env.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, invalidRequest("nil envelope")
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return wire.Marshal(env)
}

// DecodeRequest parses and validates a wire envelope.
func DecodeRequest(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := wire.Unmarshal(raw, &env); err != nil {
		return nil, NewError(ErrCodeInvalidRequest, "malformed request envelope", fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err))
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// EncodeResponse serializes a response envelope.
func EncodeResponse(resp *Response) ([]byte, error) {
	if resp.Responses == nil {
		cp := *resp
		cp.Responses = []ResponseItem{}
		resp = &cp
	}
	return wire.Marshal(resp)
}

// Decoder decodes helper output and reports malformed output and dropped
// tokens through its logger.
type Decoder struct {
	log *logger.Logger
}

// NewDecoder returns a Decoder logging to l; a nil l means the global logger.
func NewDecoder(l *logger.Logger) Decoder {
	return Decoder{log: l}
}

func (d Decoder) component(c logger.Component) *logger.ComponentLogger {
	if d.log != nil {
		return d.log.WithComponent(c)
	}
	return logger.WithComponent(c)
}

// DecodeResponse decodes with the global logger. See Decoder.DecodeResponse.
func DecodeResponse(raw string, want int) (*Response, error) {
	return Decoder{}.DecodeResponse(raw, want)
}

// Collect demultiplexes with the global logger. See Decoder.Collect.
func Collect(groups []RequestGroup, resp *Response) (*types.SolveResponse, error) {
	return Decoder{}.Collect(groups, resp)
}

// DecodeResponse parses the helper output for a batch of want groups. Every
// failure is a *DecodeError holding raw verbatim; it is also logged. A
// helper-level failure (type "error") is returned as an EVALUATION_FAILED
// error instead.
func (d Decoder) DecodeResponse(raw string, want int) (*Response, error) {
	resp, err := decodeResponse(raw, want)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			d.component(logger.ComponentProtocol).Error("malformed solver output", outputDiagnostics(de, want))
		}
		return nil, err
	}
	return resp, nil
}

// outputDiagnostics summarizes the shape of undecodable output next to the
// raw text.
func outputDiagnostics(de *DecodeError, want int) map[string]interface{} {
	fields := map[string]interface{}{
		"error":  de.Err,
		"raw":    de.Raw,
		"groups": want,
	}
	valid := gjson.Valid(de.Raw)
	fields["valid_json"] = valid
	if valid {
		fields["output_type"] = gjson.Get(de.Raw, "type").String()
		fields["items"] = gjson.Get(de.Raw, "responses.#").Int()
	}
	return fields
}

func decodeResponse(raw string, want int) (*Response, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &DecodeError{Raw: raw, Err: errors.New("empty output")}
	}
	var resp Response
	if err := wire.UnmarshalFromString(raw, &resp); err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	switch resp.Type {
	case "", string(ItemResult):
	case string(ItemError):
		msg := resp.Error
		if msg == "" {
			msg = "unspecified error"
		}
		return nil, NewError(ErrCodeEvaluation, msg, errs.ErrEvaluation)
	default:
		return nil, &DecodeError{Raw: raw, Err: fmt.Errorf("unknown response type %q", resp.Type)}
	}
	if resp.Responses == nil {
		return nil, &DecodeError{Raw: raw, Err: errors.New("missing responses")}
	}
	if len(resp.Responses) != want {
		return nil, &DecodeError{Raw: raw, Err: fmt.Errorf("got %d responses for %d request groups", len(resp.Responses), want)}
	}
	return &resp, nil
}

// Collect walks request groups and response items in lockstep. Result items
// merge into the map of their kind; tokens that were not requested are
// dropped. Error items become KindErrors. Every group is inspected before
// returning, so the response always carries the kinds that succeeded; the
// error, if any, is a *SolveError naming every failed kind.
func (d Decoder) Collect(groups []RequestGroup, resp *Response) (*types.SolveResponse, error) {
	if resp == nil || len(resp.Responses) != len(groups) {
		got := 0
		if resp != nil {
			got = len(resp.Responses)
		}
		return nil, &DecodeError{Err: fmt.Errorf("got %d responses for %d request groups", got, len(groups))}
	}

	log := d.component(logger.ComponentSolver)
	out := types.NewSolveResponse()
	out.Preprocessed = resp.PreprocessedPlayer

	var failed []*KindError
	for i, g := range groups {
		item := resp.Responses[i]
		if item.Type == ItemError {
			failed = appendKindError(failed, g.Type, item.Error)
			continue
		}
		target := out.Map(g.Type)
		if target == nil {
			continue
		}
		wanted := make(map[string]struct{}, len(g.Challenges))
		for _, c := range g.Challenges {
			wanted[c] = struct{}{}
		}
		for token, solved := range item.Data {
			if _, ok := wanted[token]; !ok {
				log.Warn("dropping unrequested token", map[string]interface{}{
					"kind":  string(g.Type),
					"token": token,
				})
				continue
			}
			target[token] = solved
		}
	}
	if len(failed) > 0 {
		return out, &SolveError{Errors: failed}
	}
	return out, nil
}

// appendKindError merges messages when one kind fails in several groups.
func appendKindError(list []*KindError, kind types.Kind, msg string) []*KindError {
	for _, ke := range list {
		if ke.Kind == kind {
			ke.Message += "; " + msg
			return list
		}
	}
	return append(list, &KindError{Kind: kind, Message: msg})
}
