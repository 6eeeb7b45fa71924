package directives

import (
	"fmt"

	"github.com/lopezcrawl/lopez/internal/lcd"
)

// ImportCycleError reports a cyclic `import` chain (§4.C.1).
type ImportCycleError struct {
	Span  lcd.Span
	Chain []string
}

func (e *ImportCycleError) Error() string {
	return fmt.Sprintf("%s: import cycle: %v", e.Span, e.Chain)
}
func (e *ImportCycleError) ErrSpan() lcd.Span { return e.Span }

// InvalidPatternError reports a malformed allow/disallow/frontier regex
// (§4.C.2).
type InvalidPatternError struct {
	Span lcd.Span
	Msg  string
}

func (e *InvalidPatternError) Error() string    { return fmt.Sprintf("%s: %s", e.Span, e.Msg) }
func (e *InvalidPatternError) ErrSpan() lcd.Span { return e.Span }

// DuplicateRuleError reports a rule name reused across the program (§4.C.4).
type DuplicateRuleError struct {
	Span lcd.Span
	Name string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("%s: duplicate rule name %q", e.Span, e.Name)
}
func (e *DuplicateRuleError) ErrSpan() lcd.Span { return e.Span }

// UnknownVariableError reports a `set` to an undeclared variable (§4.C.5).
type UnknownVariableError struct {
	Span lcd.Span
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("%s: unknown variable %q", e.Span, e.Name)
}
func (e *UnknownVariableError) ErrSpan() lcd.Span { return e.Span }

// InvalidVariableError reports a `set` value of the wrong type for its
// variable (§4.C.5). A value of the right type that is out of range is
// reported by the configuration validation step as a wrapped validator
// error, not as an InvalidVariableError.
type InvalidVariableError struct {
	Span lcd.Span
	Name string
	Msg  string
}

func (e *InvalidVariableError) Error() string {
	return fmt.Sprintf("%s: variable %q: %s", e.Span, e.Name, e.Msg)
}
func (e *InvalidVariableError) ErrSpan() lcd.Span { return e.Span }
