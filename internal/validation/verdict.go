// Package validation checks candidate segment queries before they reach the
// query engine. Validators report problems in a Verdict and never return
// errors across their boundary.
package validation

// Verdict is the outcome of one or more validators. IsValid is true iff no
// validator contributed an error.
type Verdict struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewVerdict returns a passing verdict with empty lists
func NewVerdict() Verdict {
	return Verdict{
		IsValid:  true,
		Errors:   []string{},
		Warnings: []string{},
	}
}

// Failed returns a verdict holding a single error
func Failed(message string) Verdict {
	v := NewVerdict()
	v.AddError(message)

	return v
}

// AddError records an error and marks the verdict invalid
func (v *Verdict) AddError(message string) {
	v.Errors = append(v.Errors, message)
	v.IsValid = false
}

// AddWarning records an advisory
func (v *Verdict) AddWarning(message string) {
	v.Warnings = append(v.Warnings, message)
}

// Merge concatenates verdicts in the order given. The result is valid only
// if every input is valid.
func Merge(verdicts ...Verdict) Verdict {
	merged := NewVerdict()

	for _, v := range verdicts {
		merged.IsValid = merged.IsValid && v.IsValid && len(v.Errors) == 0
		merged.Errors = append(merged.Errors, v.Errors...)
		merged.Warnings = append(merged.Warnings, v.Warnings...)
	}

	return merged
}
