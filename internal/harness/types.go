package harness

// Trace event types.
const (
	EventCall     = "call"
	EventReply    = "reply"
	EventEmit     = "emit"
	EventRejected = "rejected"
)

// TraceEvent is one entry of a run's trace. A step produces a call
// followed by either a reply (with one emit per event) or a rejection.
type TraceEvent struct {
	Type   string `json:"type"`
	Seq    int64  `json:"seq"`
	Step   int    `json:"step"`
	CallID string `json:"call_id,omitempty"`
	Method string `json:"method,omitempty"`

	// Call
	Args    []any  `json:"args,omitempty"`
	Message string `json:"message,omitempty"`

	// Reply
	Outcome string `json:"outcome,omitempty"`
	Output  any    `json:"output,omitempty"`
	Hex     string `json:"hex,omitempty"`

	// Rejected
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`

	// Emit
	Event  string   `json:"event,omitempty"`
	Topics []string `json:"topics,omitempty"`
	Data   string   `json:"data,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success: every expect clause and
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains every call, reply, emitted event and rejection in
	// order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
