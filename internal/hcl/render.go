package hcl

import (
	"fmt"
	"strings"
)

const indentStep = 2

// Render produces the HCL text of a single record, terminated by a newline.
func Render(r *Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q %q {\n", r.Kind, r.Type, r.Name)
	renderBody(&b, r.Body, indentStep)
	b.WriteString("}\n")
	return b.String()
}

func renderBody(b *strings.Builder, body *Body, indent int) {
	if body == nil {
		return
	}
	pad := strings.Repeat(" ", indent)
	for _, attr := range body.Attributes() {
		switch v := attr.Value.(type) {
		case StringValue:
			if strings.Contains(string(v), "\n") {
				renderHeredoc(b, pad, attr.Key, string(v))
			} else {
				fmt.Fprintf(b, "%s%s = %q\n", pad, attr.Key, string(v))
			}
		case BoolValue:
			fmt.Fprintf(b, "%s%s = %t\n", pad, attr.Key, bool(v))
		case RawValue:
			fmt.Fprintf(b, "%s%s = %s\n", pad, attr.Key, string(v))
		case ReferenceValue:
			fmt.Fprintf(b, "%s%s = %s\n", pad, attr.Key, v.Target.RefAddress())
		case ListValue:
			renderList(b, pad, attr.Key, v, indent)
		case BlockValue:
			fmt.Fprintf(b, "%s%s {\n", pad, attr.Key)
			renderBody(b, v.Body, indent+indentStep)
			fmt.Fprintf(b, "%s}\n", pad)
		}
	}
}

// renderHeredoc writes multi-line strings without re-indenting the content;
// trigger patterns keep their own layout.
func renderHeredoc(b *strings.Builder, pad, key, value string) {
	fmt.Fprintf(b, "%s%s = <<EOT\n", pad, key)
	b.WriteString(value)
	if !strings.HasSuffix(value, "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "%sEOT\n", pad)
}

func renderList(b *strings.Builder, pad, key string, list ListValue, indent int) {
	if len(list) == 0 {
		fmt.Fprintf(b, "%s%s = []\n", pad, key)
		return
	}
	itemPad := strings.Repeat(" ", indent+indentStep)
	fmt.Fprintf(b, "%s%s = [\n", pad, key)
	for _, item := range list {
		if expr, ok := renderScalar(item); ok {
			fmt.Fprintf(b, "%s%s,\n", itemPad, expr)
		}
	}
	fmt.Fprintf(b, "%s]\n", pad)
}

// renderScalar encodes values that may appear as list elements.
func renderScalar(v Value) (string, bool) {
	switch v := v.(type) {
	case StringValue:
		return fmt.Sprintf("%q", string(v)), true
	case BoolValue:
		return fmt.Sprintf("%t", bool(v)), true
	case RawValue:
		return string(v), true
	case ReferenceValue:
		return v.Target.RefAddress(), true
	default:
		return "", false
	}
}
