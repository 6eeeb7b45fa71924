package lcd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lopezcrawl/lopez/internal/value"
)

// Pretty renders a Program back to LCD source. It is not required to
// reproduce the original byte-for-byte, only to satisfy the parser law
// parse(Pretty(parse(P))) == parse(P) (§8).
func Pretty(prog *Program) string {
	var sb strings.Builder
	for _, d := range prog.Decls {
		writeDecl(&sb, d)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func writeDecl(sb *strings.Builder, d Decl) {
	switch v := d.(type) {
	case *ImportDecl:
		fmt.Fprintf(sb, "import %s;\n", quote(v.Path))
	case *BoundaryDecl:
		writeBoundary(sb, v)
	case *SeedDecl:
		fmt.Fprintf(sb, "seed %s;\n", quote(v.URL))
	case *SetDecl:
		fmt.Fprintf(sb, "set %s = %s;\n", v.Name, writeLiteral(v.Literal))
	case *RuleSet:
		writeRuleSet(sb, v)
	}
}

func writeBoundary(sb *strings.Builder, d *BoundaryDecl) {
	switch d.Kind {
	case BoundaryAllow:
		fmt.Fprintf(sb, "allow %s;\n", quote(d.Pattern))
	case BoundaryDisallow:
		fmt.Fprintf(sb, "disallow %s;\n", quote(d.Pattern))
	case BoundaryFrontier:
		fmt.Fprintf(sb, "frontier %s;\n", quote(d.Pattern))
	case BoundaryUseParam:
		if d.AllParams {
			sb.WriteString("use param *;\n")
		} else {
			fmt.Fprintf(sb, "use param %s;\n", quote(d.Pattern))
		}
	case BoundaryIgnoreParam:
		fmt.Fprintf(sb, "ignore param %s;\n", quote(d.Pattern))
	}
}

func writeRuleSet(sb *strings.Builder, rs *RuleSet) {
	sb.WriteString("select ")
	if rs.HasIn {
		fmt.Fprintf(sb, "in %s ", quote(rs.InRegex))
	}
	sb.WriteString(rs.Selector)
	sb.WriteString(" {\n")
	for _, r := range rs.Rules {
		fmt.Fprintf(sb, "\t%s: %s;\n", r.Name, writeExpr(r.Body))
	}
	sb.WriteString("}\n")
}

func writeExpr(e *Expr) string {
	var sb strings.Builder
	switch e.Kind {
	case AggregatorCall:
		sb.WriteString(e.Name)
		if len(e.Args) > 0 {
			sb.WriteByte('(')
			for i, a := range e.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(writeExpr(a))
			}
			sb.WriteByte(')')
		}
	case ExtractorCall:
		sb.WriteString(e.Name)
		sb.WriteByte('(')
		sb.WriteString(writeExpr(e.Args[0]))
		if e.Selector != "" {
			sb.WriteString(", ")
			sb.WriteString(e.Selector)
		}
		sb.WriteByte(')')
	case ExtractorLeaf:
		sb.WriteString(e.Name)
		if e.Name == "attr" {
			sb.WriteByte(' ')
			if s, ok := e.Value.String(); ok {
				sb.WriteString(quote(s))
			}
		}
	}
	for _, t := range e.Chain {
		sb.WriteByte(' ')
		sb.WriteString(writeTransformer(t))
	}
	if e.Explode {
		sb.WriteString("!explode")
	}
	return sb.String()
}

func writeTransformer(t *Expr) string {
	switch t.Name {
	case "between":
		arr, _ := t.Value.Array()
		return fmt.Sprintf("between %s and %s", writeLiteral(arr[0]), writeLiteral(arr[1]))
	case "in":
		return fmt.Sprintf("in %s", writeLiteral(t.Value))
	case "replace":
		arr, _ := t.Value.Array()
		pat, _ := arr[0].String()
		repl, _ := arr[1].String()
		return fmt.Sprintf("replace %s with %s", quote(pat), quote(repl))
	case "capture", "all-captures", "matches":
		s, _ := t.Value.String()
		return fmt.Sprintf("%s %s", t.Name, quote(s))
	case "get":
		return fmt.Sprintf("get %s", writeLiteral(t.Value))
	case "greater-than", "lesser-than", "greater-or-equal", "lesser-or-equal", "equals":
		return fmt.Sprintf("%s %s", t.Name, writeLiteral(t.Value))
	case "each", "filter", "any", "all":
		var inner strings.Builder
		if len(t.Args) == 1 {
			for i, c := range t.Args[0].Chain {
				if i > 0 {
					inner.WriteByte(' ')
				}
				inner.WriteString(writeTransformer(c))
			}
		}
		return fmt.Sprintf("%s(%s)", t.Name, inner.String())
	default:
		return t.Name
	}
}

func writeLiteral(v value.Value) string {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.String()
		return quote(s)
	case value.KindNumber:
		n, _ := v.Number()
		return strconv.FormatFloat(n, 'g', -1, 64)
	case value.KindBool:
		b, _ := v.Bool()
		return strconv.FormatBool(b)
	case value.KindArray:
		elems, _ := v.Array()
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = writeLiteral(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "null"
	}
}

func quote(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return "\"" + s + "\""
}
