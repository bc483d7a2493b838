package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxStructuredRepairAttempts limits self-repair round trips when structured
// output fails to parse or validate.
const maxStructuredRepairAttempts = 2

// ChatStructured sends req, which must carry a JSON schema response format,
// and returns output that parsed and validated against that schema. Invalid
// output is sent back to the model with the validation issue, up to
// maxStructuredRepairAttempts times.
func ChatStructured(ctx context.Context, client LLMClient, req *ChatRequest) (json.RawMessage, *ChatResult, error) {
	if req.ResponseFormat == nil || len(req.ResponseFormat.JSONSchema) == 0 {
		return nil, nil, fmt.Errorf("structured chat requires a JSON schema response format")
	}
	schema := req.ResponseFormat.JSONSchema

	attempt := *req
	attempt.Messages = append([]Message(nil), req.Messages...)

	var (
		result  *ChatResult
		lastErr error
	)
	for i := 0; i <= maxStructuredRepairAttempts; i++ {
		var err error
		result, err = client.Chat(ctx, &attempt)
		if err != nil {
			return nil, result, err
		}

		parsed := result.ParsedJSON
		if len(parsed) == 0 {
			parsed, err = parseStructuredJSON(result.Content)
		}
		if err == nil {
			err = validateStructuredJSON(schema, parsed)
		}
		if err == nil {
			result.Success = true
			result.ErrorType = ""
			result.ErrorMessage = ""
			result.ParsedJSON = parsed
			return parsed, result, nil
		}

		lastErr = err
		attempt.Messages = append(attempt.Messages,
			Message{Role: RoleAssistant, Content: result.Content},
			Message{Role: RoleUser, Content: structuredRepairPrompt(schema, result.Content, err)},
		)
	}
	return nil, result, fmt.Errorf("structured output invalid after %d repair attempts: %w", maxStructuredRepairAttempts, lastErr)
}

// parseStructuredJSON returns the model output as compact JSON. Output
// wrapped in a markdown fence or surrounded by prose is recovered.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	for _, candidate := range []string{content, stripCodeFences(content), extractJSONCandidate(content)} {
		if candidate == "" {
			continue
		}
		var v any
		if json.Unmarshal([]byte(candidate), &v) != nil {
			continue
		}
		compact, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize structured output: %w", err)
		}
		return compact, nil
	}
	return nil, fmt.Errorf("failed to parse structured JSON")
}

// stripCodeFences removes a leading ``` or ```json line and a trailing ```.
func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	_, body, ok := strings.Cut(content, "\n")
	if !ok {
		return ""
	}
	body = strings.TrimSpace(body)
	return strings.TrimSpace(strings.TrimSuffix(body, "```"))
}

// extractJSONCandidate returns the span from the first { or [ to the last
// matching closer.
func extractJSONCandidate(content string) string {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if content[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(content, closer)
	if end < start {
		return ""
	}
	return content[start : end+1]
}

var compiledSchemas sync.Map // schema text -> *jsonschema.Schema

// validateStructuredJSON checks parsed against schemaRaw, which may be a bare
// schema or wrapped as {"name","strict","schema"}. Compiled schemas are
// cached by their text.
func validateStructuredJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}

	schema, err := compileSchema(schemaRaw)
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

func compileSchema(schemaRaw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaRaw)
	if cached, ok := compiledSchemas.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	core, err := unwrapSchema(schemaRaw)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(core)); err != nil {
		return nil, fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile structured schema: %w", err)
	}
	compiledSchemas.Store(key, schema)
	return schema, nil
}

// unwrapSchema strips the response-format wrappers providers expect,
// {"schema": ...} and {"json_schema": {"schema": ...}}.
func unwrapSchema(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var wrapper struct {
		Schema     json.RawMessage `json:"schema"`
		JSONSchema *struct {
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	}
	if err := json.Unmarshal(schemaRaw, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid structured schema JSON: %w", err)
	}
	switch {
	case len(wrapper.Schema) > 0:
		return wrapper.Schema, nil
	case wrapper.JSONSchema != nil && len(wrapper.JSONSchema.Schema) > 0:
		return wrapper.JSONSchema.Schema, nil
	default:
		return schemaRaw, nil
	}
}

const maxRepairEcho = 4000

func structuredRepairPrompt(schemaRaw json.RawMessage, lastOutput string, issue error) string {
	lastOutput = strings.TrimSpace(lastOutput)
	if len(lastOutput) > maxRepairEcho {
		lastOutput = lastOutput[:maxRepairEcho] + "\n...[truncated]"
	}
	return fmt.Sprintf(`Your last answer could not be used. Reply with ONLY a JSON object that matches this schema, with no markdown and no commentary.

Schema:
%s

Your previous output:
%s

Validation issue:
%v`, schemaRaw, lastOutput, issue)
}
