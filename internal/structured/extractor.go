// Package structured turns free-form completions into typed values. The
// model is told the JSON schema, its reply is validated against it, and
// invalid replies are sent back with the validation error for a bounded
// number of repairs.
package structured

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/your-org/fluxgen/internal/config"
	"github.com/your-org/fluxgen/internal/genai"
	"github.com/your-org/fluxgen/internal/metrics"
	"github.com/your-org/fluxgen/pkg/adapters"
)

// MaxParseRetries is the number of repair turns after the first reply.
const MaxParseRetries = 2

const defaultCacheSize = 64

// ErrorTypeSchemaValidation is the error.type label recorded when the repair
// loop gives up.
const ErrorTypeSchemaValidation = "schema_validation"

// Generator is the subset of *genai.Client the extractor needs.
type Generator interface {
	Generate(ctx context.Context, call genai.Call) (adapters.GenerateResult, error)
}

// Request describes one extraction. Call.Prompt and Call.System are the
// caller's text; the schema instruction is appended to the system prompt.
// Schema may be nil, in which case it is derived from the output type.
type Request struct {
	Call   genai.Call
	Schema json.RawMessage
}

// Attempt is one reply inside the repair loop.
type Attempt struct {
	Index    int
	RawText  string
	ParseErr error
}

// Outcome reports every attempt and the reply that was accepted.
type Outcome struct {
	Attempts []Attempt
	Result   adapters.GenerateResult
}

type Extractor struct {
	gen      Generator
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder metrics.Recorder
	schemas  *lru.Cache[string, *jsonschema.Schema]
}

type Option func(*Extractor)

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Extractor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithRecorder receives the error signal for replies that never validate.
// Provider errors are already recorded by the generation client.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Extractor) {
		if r != nil {
			e.recorder = r
		}
	}
}

func New(gen Generator, opts ...Option) *Extractor {
	cache, _ := lru.New[string, *jsonschema.Schema](defaultCacheSize)
	e := &Extractor{
		gen:      gen,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/your-org/fluxgen/internal/structured"),
		recorder: metrics.NoopRecorder{},
		schemas:  cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate decodes a schema-valid reply into out, which must be a non-nil
// pointer. Errors from the generation client are returned unchanged; a reply
// that never validates yields *SchemaValidationError.
func (e *Extractor) Generate(ctx context.Context, req Request, out any) (Outcome, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return Outcome{}, fmt.Errorf("structured: out must be a non-nil pointer, got %T", out)
	}
	schema := req.Schema
	if len(schema) == 0 {
		derivedSchema, err := schemaForType(rv.Type())
		if err != nil {
			return Outcome{}, err
		}
		schema = derivedSchema
	}
	compiled, err := e.compile(schema)
	if err != nil {
		return Outcome{}, err
	}
	instruction, err := Instruction(schema)
	if err != nil {
		return Outcome{}, err
	}

	endpoint := req.Call.Endpoint
	if endpoint == "" {
		endpoint = "generate"
	}
	ctx, span := e.tracer.Start(ctx, "structured "+endpoint)
	defer span.End()

	call := req.Call
	call.System = SystemPrompt(req.Call.System, instruction)
	// vendor JSON modes only accept a top-level object
	call.JSONMode = wantsObject(schema)
	call.Turns = append([]adapters.Message(nil), req.Call.Turns...)

	var outcome Outcome
	for i := 0; i <= MaxParseRetries; i++ {
		res, err := e.gen.Generate(ctx, call)
		if err != nil {
			span.SetAttributes(attribute.Int("gen_ai.structured.attempts", len(outcome.Attempts)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return outcome, err
		}
		outcome.Result = res

		parseErr := decode(compiled, res.Content, out)
		outcome.Attempts = append(outcome.Attempts, Attempt{Index: i, RawText: res.Content, ParseErr: parseErr})
		if parseErr == nil {
			span.SetAttributes(attribute.Int("gen_ai.structured.attempts", len(outcome.Attempts)))
			return outcome, nil
		}

		e.logger.WarnContext(ctx, "structured output failed validation",
			"endpoint", endpoint, "attempt", i+1, "max_attempts", MaxParseRetries+1, "error", parseErr)
		call.Turns = append(call.Turns,
			adapters.Message{Role: adapters.RoleAssistant, Content: res.Content},
			adapters.Message{Role: adapters.RoleUser, Content: CorrectiveMessage(parseErr)},
		)
	}

	last := outcome.Attempts[len(outcome.Attempts)-1].ParseErr
	verr := &SchemaValidationError{Attempts: len(outcome.Attempts), Err: last}
	span.SetAttributes(attribute.Int("gen_ai.structured.attempts", len(outcome.Attempts)))
	span.RecordError(verr)
	span.SetStatus(codes.Error, "schema validation failed")
	e.recorder.ObserveError(ctx, e.labels(call, outcome.Result), ErrorTypeSchemaValidation)
	return outcome, verr
}

// providerInfo is implemented by *genai.Client; it resolves the configured
// primary so error labels match the ones the client records.
type providerInfo interface {
	Config() config.Config
	Identity(provider string) adapters.Identity
}

func (e *Extractor) labels(call genai.Call, res adapters.GenerateResult) metrics.Call {
	labels := metrics.Call{
		Provider:      call.Provider,
		RequestModel:  call.Model,
		ResponseModel: res.Model,
		Endpoint:      call.Endpoint,
		ContentType:   call.ContentType,
		AgentName:     call.AgentName,
		CampaignID:    call.CampaignID,
	}
	if pi, ok := e.gen.(providerInfo); ok {
		cfg := pi.Config()
		if labels.Provider == "" {
			labels.Provider = cfg.Provider
		}
		if labels.RequestModel == "" {
			labels.RequestModel = cfg.Model
		}
		id := pi.Identity(labels.Provider)
		labels.Provider = id.System
		labels.ServerAddress, labels.ServerPort = id.ServerAddress, id.ServerPort
	}
	if labels.RequestModel == "" {
		labels.RequestModel = res.Model
	}
	return labels
}

// wantsObject reports whether every instance of schema is a JSON object.
func wantsObject(schema json.RawMessage) bool {
	var top struct {
		Type       any             `json:"type"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &top); err != nil {
		return false
	}
	switch t := top.Type.(type) {
	case string:
		return t == "object"
	case []any:
		object := false
		for _, v := range t {
			switch v {
			case "object":
				object = true
			case "null":
			default:
				return false
			}
		}
		return object
	case nil:
		return len(top.Properties) > 0
	}
	return false
}

// Generate is the typed form of (*Extractor).Generate.
func Generate[T any](ctx context.Context, e *Extractor, req Request) (T, error) {
	var out T
	_, err := e.Generate(ctx, req, &out)
	return out, err
}

// Instruction is the schema directive appended to the system prompt.
func Instruction(schema json.RawMessage) (string, error) {
	var buf strings.Builder
	var v any
	if err := json.Unmarshal(schema, &v); err != nil {
		return "", fmt.Errorf("structured: schema is not valid JSON: %w", err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	buf.WriteString("Respond ONLY with valid JSON matching this schema:\n")
	buf.Write(pretty)
	return buf.String(), nil
}

// SystemPrompt joins the caller's system prompt and the schema instruction.
func SystemPrompt(system, instruction string) string {
	if system == "" {
		return instruction
	}
	return system + "\n\n" + instruction
}

// CorrectiveMessage is the user turn sent after an invalid reply.
func CorrectiveMessage(err error) string {
	return fmt.Sprintf("Your response did not match the required schema. Error: %v\nPlease try again with valid JSON matching the schema.", err)
}

func (e *Extractor) compile(schema json.RawMessage) (*jsonschema.Schema, error) {
	sum := sha256.Sum256(schema)
	key := hex.EncodeToString(sum[:])
	if s, ok := e.schemas.Get(key); ok {
		return s, nil
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schema)))
	if err != nil {
		return nil, fmt.Errorf("structured: schema is not valid JSON: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("structured: add schema: %w", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("structured: compile schema: %w", err)
	}
	e.schemas.Add(key, s)
	return s, nil
}

var errEmptyReply = errors.New("empty response")

func decode(schema *jsonschema.Schema, content string, out any) error {
	text := StripMarkdownFence(content)
	if text == "" {
		return errEmptyReply
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return err
	}
	// decode into a fresh value so a failed attempt leaves out untouched
	dst := reflect.New(reflect.TypeOf(out).Elem())
	if err := json.Unmarshal([]byte(text), dst.Interface()); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	reflect.ValueOf(out).Elem().Set(dst.Elem())
	return nil
}
