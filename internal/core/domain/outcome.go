package domain

// Outcome is the successful result of a backend operation.
type Outcome struct {
	Found  bool
	Value  string
	Note   string
	Source string // what produced the answer, e.g. a backend key
}

// Found builds a positive outcome carrying a value and an optional note.
func Found(value, note string) Outcome {
	return Outcome{Found: true, Value: value, Note: note}
}

// NotFound builds the negative outcome.
func NotFound() Outcome {
	return Outcome{}
}

// Verdict renders a boolean truth value the way verification outcomes store it.
func Verdict(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
