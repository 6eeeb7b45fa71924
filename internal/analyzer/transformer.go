package analyzer

import (
	"github.com/lopezcrawl/lopez/internal/lcd"
	"github.com/lopezcrawl/lopez/internal/siphash"
	"github.com/lopezcrawl/lopez/internal/value"
)

// applyChain threads v through chain left-to-right (§4.E). Every
// transformer below is total: a step whose precondition fails yields Null,
// and most steps map a Null input to Null, while is-null, is-not-null,
// equals and in still return a Bool for a Null input.
func applyChain(v value.Value, chain []*lcd.Expr, c *Compiled) value.Value {
	for _, t := range chain {
		v = applyTransformer(v, t, c)
	}
	return v
}

func applyTransformer(v value.Value, t *lcd.Expr, c *Compiled) value.Value {
	switch t.Name {
	case "is-null":
		return value.Bool(v.IsNull())
	case "is-not-null":
		return value.Bool(!v.IsNull())
	case "not":
		b, ok := v.Bool()
		if !ok {
			return value.Null
		}
		return value.Bool(!b)
	case "hash":
		raw, err := value.ToJSON(v)
		if err != nil {
			return value.Null
		}
		return value.String(siphash.HexSum64(siphash.DefaultKey, raw))
	case "as-number":
		f, ok := value.CoerceNumber(v)
		if !ok {
			return value.Null
		}
		return value.Number(f)
	case "as-string":
		s, ok := value.CoerceString(v)
		if !ok {
			return value.Null
		}
		return value.String(s)
	case "greater-than", "lesser-than", "greater-or-equal", "lesser-or-equal":
		cmp, ok := value.Compare(v, t.Value)
		if !ok {
			return value.Null
		}
		switch t.Name {
		case "greater-than":
			return value.Bool(cmp > 0)
		case "lesser-than":
			return value.Bool(cmp < 0)
		case "greater-or-equal":
			return value.Bool(cmp >= 0)
		default:
			return value.Bool(cmp <= 0)
		}
	case "equals":
		return value.Bool(value.Equal(v, t.Value))
	case "between":
		bounds, ok := t.Value.Array()
		if !ok || len(bounds) != 2 {
			return value.Null
		}
		lo, ok1 := value.CoerceNumber(bounds[0])
		hi, ok2 := value.CoerceNumber(bounds[1])
		f, ok3 := value.CoerceNumber(v)
		if !ok1 || !ok2 || !ok3 {
			return value.Null
		}
		return value.Bool(f >= lo && f <= hi)
	case "in":
		set, ok := t.Value.Array()
		if !ok {
			return value.Null
		}
		for _, candidate := range set {
			if value.Equal(candidate, v) {
				return value.Bool(true)
			}
		}
		return value.Bool(false)
	case "get":
		if idx, ok := t.Value.Number(); ok {
			return v.Index(int(idx))
		}
		if key, ok := t.Value.String(); ok {
			return v.Get(key)
		}
		return value.Null
	case "capture", "all-captures":
		return applyCapture(v, t, c)
	case "matches":
		s, ok := v.String()
		if !ok {
			return value.Null
		}
		pattern, _ := t.Value.String()
		re := c.regexes[pattern]
		if re == nil {
			return value.Null
		}
		return value.Bool(re.MatchString(s))
	case "replace":
		s, ok := v.String()
		if !ok {
			return value.Null
		}
		parts, ok := t.Value.Array()
		if !ok || len(parts) != 2 {
			return value.Null
		}
		pattern, _ := parts[0].String()
		repl, _ := parts[1].String()
		re := c.regexes[pattern]
		if re == nil {
			return value.Null
		}
		return value.String(re.ReplaceAllString(s, repl))
	case "each", "filter", "any", "all":
		return applyIteration(v, t, c)
	case "flatten":
		arr, ok := v.Array()
		if !ok {
			return value.Null
		}
		var out []value.Value
		for _, e := range arr {
			if inner, ok := e.Array(); ok {
				out = append(out, inner...)
			} else {
				out = append(out, e)
			}
		}
		return value.ArrayFrom(out)
	case "sort":
		arr, ok := v.Array()
		if !ok {
			return value.Null
		}
		cp := append([]value.Value(nil), arr...)
		value.SortValues(cp)
		return value.ArrayFrom(cp)
	case "pretty":
		s, err := value.Pretty(v)
		if err != nil {
			return value.Null
		}
		return value.String(s)
	default:
		return value.Null
	}
}

func applyCapture(v value.Value, t *lcd.Expr, c *Compiled) value.Value {
	s, ok := v.String()
	if !ok {
		return value.Null
	}
	pattern, _ := t.Value.String()
	re := c.regexes[pattern]
	if re == nil {
		return value.Null
	}
	if t.Name == "capture" {
		m := re.FindStringSubmatch(s)
		if m == nil {
			return value.Null
		}
		return groupsToArray(m)
	}
	all := re.FindAllStringSubmatch(s, -1)
	vals := make([]value.Value, len(all))
	for i, m := range all {
		vals[i] = groupsToArray(m)
	}
	return value.ArrayFrom(vals)
}

func groupsToArray(m []string) value.Value {
	if len(m) <= 1 {
		return value.ArrayFrom(nil)
	}
	vals := make([]value.Value, len(m)-1)
	for i, g := range m[1:] {
		vals[i] = value.String(g)
	}
	return value.ArrayFrom(vals)
}

// applyIteration backs each/filter/any/all, all of which apply t's nested
// transformer chain (stashed in t.Args[0].Chain by the parser) to every
// element of an Array v.
func applyIteration(v value.Value, t *lcd.Expr, c *Compiled) value.Value {
	arr, ok := v.Array()
	if !ok {
		return value.Null
	}
	nested := t.Args[0].Chain
	switch t.Name {
	case "each":
		out := make([]value.Value, len(arr))
		for i, e := range arr {
			out[i] = applyChain(e, nested, c)
		}
		return value.ArrayFrom(out)
	case "filter":
		var out []value.Value
		for _, e := range arr {
			if value.Truthy(applyChain(e, nested, c)) {
				out = append(out, e)
			}
		}
		return value.ArrayFrom(out)
	case "any":
		for _, e := range arr {
			if value.Truthy(applyChain(e, nested, c)) {
				return value.Bool(true)
			}
		}
		return value.Bool(false)
	case "all":
		for _, e := range arr {
			if !value.Truthy(applyChain(e, nested, c)) {
				return value.Bool(false)
			}
		}
		return value.Bool(true)
	default:
		return value.Null
	}
}
