package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/pkg/domain"
)

type operator string

const (
	opEq    operator = "="
	opNe    operator = "!="
	opGt    operator = ">"
	opGte   operator = ">="
	opLt    operator = "<"
	opLte   operator = "<="
	opRegex operator = "~"
)

// Longest tokens first so ">=" is not read as ">".
var operatorTokens = []struct {
	token string
	op    operator
}{
	{"!=", opNe},
	{">=", opGte},
	{"<=", opLte},
	{"==", opEq},
	{">", opGt},
	{"<", opLt},
	{"=", opEq},
	{"~", opRegex},
}

type branch struct {
	op      operator
	operand string
}

func invalid(key, value, reason string) error {
	return domain.InvalidValue(key, value, reason)
}

// splitGroups turns a raw value into AND groups of OR branches. Slices form a
// single group whose elements are taken verbatim as branches.
func splitGroups(key string, v any) ([][]string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, invalid(key, t, "empty value")
		}
		var out [][]string
		for _, g := range strings.Split(t, ";") {
			out = append(out, strings.Split(g, ","))
		}
		return out, nil
	case []string:
		if len(t) == 0 {
			return nil, invalid(key, "", "empty list")
		}
		return [][]string{t}, nil
	case []int64, []int:
		s, _ := text(t)
		if s == "" {
			return nil, invalid(key, "", "empty list")
		}
		return [][]string{strings.Split(s, ",")}, nil
	}
	s, ok := text(v)
	if !ok {
		return nil, invalid(key, fmt.Sprint(v), fmt.Sprintf("unsupported value type %T", v))
	}
	return [][]string{{s}}, nil
}

func parseBranch(key, raw string) (branch, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return branch{}, invalid(key, raw, "empty branch")
	}
	b := branch{op: opEq}
	for _, t := range operatorTokens {
		if strings.HasPrefix(s, t.token) {
			b.op = t.op
			s = strings.TrimSpace(s[len(t.token):])
			break
		}
	}
	if s == "" {
		return branch{}, invalid(key, raw, "missing operand")
	}
	for _, t := range operatorTokens {
		if strings.HasPrefix(s, t.token) {
			return branch{}, invalid(key, raw, "repeated operator")
		}
	}
	b.operand = s
	return b, nil
}

// typed converts an operand to the param kind. Dates are handled separately.
func typed(key string, kind Kind, enum []string, b branch) (any, error) {
	if b.op == opRegex {
		switch kind {
		case Text, TextList, auto:
		default:
			return nil, invalid(key, b.operand, fmt.Sprintf("regular expressions apply to text fields, not %s", kind))
		}
		if _, err := regexp.Compile(b.operand); err != nil {
			return nil, invalid(key, b.operand, err.Error())
		}
		return b.operand, nil
	}
	switch kind {
	case Text, TextList:
		return b.operand, nil
	case Integer, IntegerList:
		n, err := strconv.ParseInt(b.operand, 10, 64)
		if err != nil {
			return nil, invalid(key, b.operand, "not an integer")
		}
		return n, nil
	case Decimal:
		f, err := strconv.ParseFloat(b.operand, 64)
		if err != nil {
			return nil, invalid(key, b.operand, "not a number")
		}
		return f, nil
	case Boolean:
		if b.op != opEq && b.op != opNe {
			return nil, invalid(key, b.operand, fmt.Sprintf("operator %s not supported for booleans", b.op))
		}
		v, err := strconv.ParseBool(strings.ToLower(b.operand))
		if err != nil {
			return nil, invalid(key, b.operand, "not a boolean")
		}
		return v, nil
	case Enum:
		if b.op != opEq && b.op != opNe {
			return nil, invalid(key, b.operand, fmt.Sprintf("operator %s not supported for enumerations", b.op))
		}
		if len(enum) == 0 {
			return b.operand, nil
		}
		for _, e := range enum {
			if strings.EqualFold(e, b.operand) {
				return e, nil
			}
		}
		return nil, invalid(key, b.operand, "expected one of "+strings.Join(enum, ","))
	case auto:
		if n, err := strconv.ParseInt(b.operand, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(b.operand, 64); err == nil {
			return f, nil
		}
		if b.operand == "true" || b.operand == "false" {
			return b.operand == "true", nil
		}
		return b.operand, nil
	}
	return nil, invalid(key, b.operand, fmt.Sprintf("unsupported kind %s", kind))
}

func comparison(path string, op operator, v any) docstore.Filter {
	switch op {
	case opNe:
		return docstore.Ne(path, v)
	case opGt:
		return docstore.Gt(path, v)
	case opGte:
		return docstore.Gte(path, v)
	case opLt:
		return docstore.Lt(path, v)
	case opLte:
		return docstore.Lte(path, v)
	case opRegex:
		return docstore.Regex{Path: path, Pattern: v.(string)}
	default:
		return docstore.Eq(path, v)
	}
}

var datePrecisions = map[int]struct {
	layout string
	next   func(time.Time) time.Time
}{
	4:  {"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
	6:  {"200601", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	8:  {"20060102", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
	10: {"2006010215", func(t time.Time) time.Time { return t.Add(time.Hour) }},
	12: {"200601021504", func(t time.Time) time.Time { return t.Add(time.Minute) }},
	14: {domain.TimeLayout, func(t time.Time) time.Time { return t.Add(time.Second) }},
}

// dateInterval expands a partial timestamp to the half-open interval it covers.
func dateInterval(s string) (lo, hi string, ok bool) {
	p, found := datePrecisions[len(s)]
	if !found || strings.Trim(s, "0123456789") != "" {
		return "", "", false
	}
	t, err := time.Parse(p.layout, s)
	if err != nil {
		return "", "", false
	}
	return t.Format(domain.TimeLayout), p.next(t).Format(domain.TimeLayout), true
}

// dateBranch compiles a date operand, either a partial timestamp or an a-b range.
func dateBranch(key, path string, b branch) (docstore.Filter, error) {
	if b.op == opRegex {
		return nil, invalid(key, b.operand, "regular expressions apply to text fields, not date")
	}
	var lo, hi string
	if from, to, isRange := strings.Cut(b.operand, "-"); isRange {
		if b.op != opEq {
			return nil, invalid(key, b.operand, "a date range cannot take an operator")
		}
		l, _, ok1 := dateInterval(strings.TrimSpace(from))
		_, h, ok2 := dateInterval(strings.TrimSpace(to))
		if !ok1 || !ok2 {
			return nil, invalid(key, b.operand, "expected yyyy[MM[dd[HH[mm[ss]]]]]-yyyy[MM[dd[HH[mm[ss]]]]]")
		}
		if l >= h {
			return nil, invalid(key, b.operand, "empty date range")
		}
		lo, hi = l, h
	} else {
		var ok bool
		if lo, hi, ok = dateInterval(b.operand); !ok {
			return nil, invalid(key, b.operand, "expected yyyy[MM[dd[HH[mm[ss]]]]]")
		}
	}
	switch b.op {
	case opNe:
		return docstore.Or{docstore.Lt(path, lo), docstore.Gte(path, hi)}, nil
	case opGt:
		return docstore.Gte(path, hi), nil
	case opGte:
		return docstore.Gte(path, lo), nil
	case opLt:
		return docstore.Lt(path, lo), nil
	case opLte:
		return docstore.Lt(path, hi), nil
	default:
		return docstore.And{docstore.Gte(path, lo), docstore.Lt(path, hi)}, nil
	}
}
