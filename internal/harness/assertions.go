package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Type {
		case EventCall:
			fmt.Fprintf(&buf, "  [%d] call %s %v\n", event.Seq, displayMethod(event.Method), event.Args)
		case EventRejected:
			fmt.Fprintf(&buf, "  [%d] rejected %s\n", event.Seq, event.Code)
		case EventEmit:
			fmt.Fprintf(&buf, "  [%d] emit %s\n", event.Seq, event.Event)
		}
	}
	return buf.String()
}

func displayMethod(m string) string {
	if m == "" {
		return "<raw>"
	}
	return m
}

// calledMethods lists the methods that reached a handler, in order.
// A rejected call is not counted, even when it named a declared method.
func calledMethods(trace []TraceEvent) []string {
	var out []string
	for _, event := range trace {
		if event.Type == EventReply {
			out = append(out, event.Method)
		}
	}
	return out
}

// assertTraceCount checks that the method was handled exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, m := range calledMethods(trace) {
		if m == assertion.Method {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d calls of %s", assertion.Count, assertion.Method),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the methods were first handled in the
// given order. Intervening calls are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, m := range calledMethods(trace) {
		if _, seen := positions[m]; !seen {
			positions[m] = i + 1
		}
	}

	for _, m := range assertion.Methods {
		if positions[m] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all methods called: %v", assertion.Methods),
				Actual:   fmt.Sprintf("missing method: %s", m),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(assertion.Methods); i++ {
		prev, curr := assertion.Methods[i-1], assertion.Methods[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("methods in order: %v", assertion.Methods),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertEventEmitted checks that the event was emitted Count times, or at
// least once when Count is zero.
func assertEventEmitted(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventEmit && event.Event == assertion.Event {
			count++
		}
	}
	if assertion.Count == 0 && count > 0 || assertion.Count > 0 && count == assertion.Count {
		return nil
	}
	want := fmt.Sprintf("%d emissions of %s", assertion.Count, assertion.Event)
	if assertion.Count == 0 {
		want = fmt.Sprintf("at least one emission of %s", assertion.Event)
	}
	return &AssertionError{
		Type:     AssertEventEmitted,
		Expected: want,
		Actual:   fmt.Sprintf("%d emissions", count),
		Trace:    trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertEventEmitted:
			err = assertEventEmitted(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
