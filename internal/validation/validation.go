// Package validation is a rule-based field validator shared by the booking,
// passenger and payment forms.
//
// A Schema maps a field name to an ordered list of rules. When a field is
// empty only its required rules are reported; an empty optional field is
// valid. A non-empty field is checked against every rule and each failing
// rule contributes its message.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

type ruleKind int

const (
	kindRequired ruleKind = iota
	kindMinLength
	kindMaxLength
	kindPattern
	kindCustom
)

var validate = validator.New()

type Rule struct {
	kind    ruleKind
	n       int
	pattern *regexp.Regexp
	check   func(string) bool
	Message string
}

func Required(message string) Rule {
	return Rule{kind: kindRequired, Message: message}
}

func MinLength(n int, message string) Rule {
	return Rule{kind: kindMinLength, n: n, Message: message}
}

func MaxLength(n int, message string) Rule {
	return Rule{kind: kindMaxLength, n: n, Message: message}
}

// Pattern panics if expr does not compile, like regexp.MustCompile.
func Pattern(expr, message string) Rule {
	return Rule{kind: kindPattern, pattern: regexp.MustCompile(expr), Message: message}
}

func Custom(check func(value string) bool, message string) Rule {
	return Rule{kind: kindCustom, check: check, Message: message}
}

func Email(message string) Rule {
	return Custom(func(v string) bool {
		return validate.Var(v, "email") == nil
	}, message)
}

func OneOf(allowed []string, message string) Rule {
	return Custom(func(v string) bool {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	}, message)
}

func (r Rule) passes(value string) bool {
	switch r.kind {
	case kindRequired:
		return !isEmpty(value)
	case kindMinLength:
		return utf8.RuneCountInString(value) >= r.n
	case kindMaxLength:
		return utf8.RuneCountInString(value) <= r.n
	case kindPattern:
		return r.pattern.MatchString(value)
	case kindCustom:
		return r.check(value)
	default:
		return true
	}
}

func isEmpty(value string) bool {
	return strings.TrimSpace(value) == ""
}

type Schema map[string][]Rule

// Check returns the messages of every rule of field that value violates.
func (s Schema) Check(field, value string) []string {
	rules := s[field]
	var messages []string

	if isEmpty(value) {
		for _, r := range rules {
			if r.kind == kindRequired {
				messages = append(messages, r.Message)
			}
		}
		return messages
	}

	for _, r := range rules {
		if !r.passes(value) {
			messages = append(messages, r.Message)
		}
	}
	return messages
}

// Errors maps a field name to its violated rule messages.
type Errors map[string][]string

func (e Errors) Valid() bool {
	return len(e) == 0
}

func (e Errors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// Merge copies other into e, prefixing field names with prefix.
func (e Errors) Merge(prefix string, other Errors) {
	for field, msgs := range other {
		e[prefix+field] = append(e[prefix+field], msgs...)
	}
}

func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

// String renders every violation as "field: message", sorted by field.
func (e Errors) String() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		for _, msg := range e[f] {
			parts = append(parts, fmt.Sprintf("%s: %s", f, msg))
		}
	}
	return strings.Join(parts, "; ")
}

// Form keeps the error map of the last validation run.
type Form struct {
	schema Schema
	errors Errors
}

func NewForm(schema Schema) *Form {
	return &Form{schema: schema, errors: Errors{}}
}

// ValidateForm checks every field of the schema against values and replaces
// the error map. Fields missing from values are treated as empty.
func (f *Form) ValidateForm(values map[string]string) bool {
	f.errors = Errors{}
	for field := range f.schema {
		if msgs := f.schema.Check(field, values[field]); len(msgs) > 0 {
			f.errors[field] = msgs
		}
	}
	return f.errors.Valid()
}

// ValidateSingleField re-checks one field and updates only its entry.
func (f *Form) ValidateSingleField(field, value string) bool {
	msgs := f.schema.Check(field, value)
	if len(msgs) == 0 {
		delete(f.errors, field)
		return true
	}
	f.errors[field] = msgs
	return false
}

func (f *Form) Errors() Errors {
	out := make(Errors, len(f.errors))
	for k, v := range f.errors {
		out[k] = append([]string(nil), v...)
	}
	return out
}
