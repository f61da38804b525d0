package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a dispatch conformance scenario: an interface built
// from CUE declarations, scripted handler behaviour, a sequence of inbound
// calls with their expected outcomes, and assertions over the trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Decls is the directory of CUE declarations.
	// Relative paths are resolved against the scenario file location.
	Decls string `yaml:"decls"`

	// Service picks one service when Decls declares several.
	Service string `yaml:"service,omitempty"`

	// Imports is a directory of description artifacts named
	// <name>@<version>.idl or .json, used for imports without a location.
	Imports string `yaml:"imports,omitempty"`

	// Default names the function invoked by an empty message.
	Default string `yaml:"default,omitempty"`

	// Handlers scripts each function. Functions without an entry return
	// nothing, which only suits functions without output.
	Handlers map[string]Behavior `yaml:"handlers,omitempty"`

	// Constructor scripts the constructor.
	Constructor *Behavior `yaml:"constructor,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace.
	// Supported types: trace_count, trace_order, event_emitted
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// CallPrefix prefixes the deterministic call ids. Defaults to "call".
	CallPrefix string `yaml:"call_prefix,omitempty"`
}

// Behavior is what a scripted handler does when invoked. At most one of
// Return, Echo, Fail and Error may be set.
type Behavior struct {
	// Return is the output value in native form.
	Return any `yaml:"return,omitempty"`

	// Echo returns the argument with this name unchanged.
	Echo string `yaml:"echo,omitempty"`

	// Fail returns this payload as the application error.
	Fail any `yaml:"fail,omitempty"`

	// Error makes the handler fail with a plain error.
	Error string `yaml:"error,omitempty"`

	// Emit lists events emitted before returning.
	Emit []EmitSpec `yaml:"emit,omitempty"`
}

// EmitSpec is one event emitted by a handler.
type EmitSpec struct {
	Event  string         `yaml:"event"`
	Fields map[string]any `yaml:"fields"`
}

// Step is one inbound message. Exactly one of Call, Raw and Construct
// selects how the message is built.
type Step struct {
	// Call is the method name; Args are encoded against its signature.
	Call string `yaml:"call,omitempty"`

	// Args are positional arguments in native form.
	Args []any `yaml:"args,omitempty"`

	// Raw is a hex-encoded message sent as is.
	Raw string `yaml:"raw,omitempty"`

	// Empty sends a zero-length message.
	Empty bool `yaml:"empty,omitempty"`

	// Construct runs the constructor with Args.
	Construct bool `yaml:"construct,omitempty"`

	// Behave overrides the method's scripted behaviour for this step.
	Behave *Behavior `yaml:"behave,omitempty"`

	// Expect checks the step outcome. If nil, only a reply is required.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeErr           = "err"
	OutcomeProtocolError = "protocol_error"
	OutcomeHandlerFailed = "handler_failed"
)

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Outcome is one of ok, err, protocol_error, handler_failed.
	Outcome string `yaml:"outcome"`

	// Output is the expected Ok value (outcome ok) or Err payload
	// (outcome err), in native form. Unchecked when absent.
	Output any `yaml:"output,omitempty"`

	// Code is the expected dispatch error code (protocol_error).
	Code string `yaml:"code,omitempty"`

	// Hex is the exact expected outbound encoding.
	Hex string `yaml:"hex,omitempty"`

	// Events is the expected number of emitted events, when set.
	Events *int `yaml:"events,omitempty"`
}

// Assertion validates the trace of the whole run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_count": Method was called exactly Count times
	// - "trace_order": Methods were called in this order
	// - "event_emitted": Event appears Count times (at least once if 0)
	Type string `yaml:"type"`

	Method  string   `yaml:"method,omitempty"`
	Methods []string `yaml:"methods,omitempty"`
	Event   string   `yaml:"event,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceCount   = "trace_count"
	AssertTraceOrder   = "trace_order"
	AssertEventEmitted = "event_emitted"
)

// LoadScenario reads and parses a scenario YAML file, resolving relative
// directories against the file's own directory.
// Unknown fields are rejected so typos surface immediately.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving relative directories against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Decls = rebase(scenario.Decls, basePath)
	scenario.Imports = rebase(scenario.Imports, basePath)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func rebase(path, base string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Decls == "" {
		return fmt.Errorf("decls is required")
	}
	if _, err := os.Stat(s.Decls); os.IsNotExist(err) {
		return fmt.Errorf("decls directory not found: %s", s.Decls)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for name, b := range s.Handlers {
		if err := validateBehavior(b); err != nil {
			return fmt.Errorf("handlers.%s: %w", name, err)
		}
	}
	if s.Constructor != nil {
		if err := validateBehavior(*s.Constructor); err != nil {
			return fmt.Errorf("constructor: %w", err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateBehavior(b Behavior) error {
	set := 0
	for _, on := range []bool{b.Return != nil, b.Echo != "", b.Fail != nil, b.Error != ""} {
		if on {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("return, echo, fail and error are mutually exclusive")
	}
	for i, e := range b.Emit {
		if e.Event == "" {
			return fmt.Errorf("emit[%d]: event is required", i)
		}
	}
	return nil
}

func validateStep(step Step) error {
	kinds := 0
	if step.Call != "" {
		kinds++
	}
	if step.Raw != "" || step.Empty {
		kinds++
	}
	if step.Construct {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("exactly one of call, raw/empty and construct is required")
	}
	if step.Raw != "" && step.Empty {
		return fmt.Errorf("raw and empty are mutually exclusive")
	}
	if len(step.Args) > 0 && step.Call == "" && !step.Construct {
		return fmt.Errorf("args require call or construct")
	}
	if step.Behave != nil {
		if err := validateBehavior(*step.Behave); err != nil {
			return fmt.Errorf("behave: %w", err)
		}
	}
	if step.Expect != nil {
		switch step.Expect.Outcome {
		case OutcomeOK, OutcomeErr, OutcomeHandlerFailed:
		case OutcomeProtocolError:
			if step.Expect.Code == "" {
				return fmt.Errorf("expect: code is required for protocol_error")
			}
		default:
			return fmt.Errorf("expect: unknown outcome %q", step.Expect.Outcome)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Methods) == 0 {
			return fmt.Errorf("assertions[%d]: methods list is required for trace_order", index)
		}
	case AssertEventEmitted:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_emitted", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
