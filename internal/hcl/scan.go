package hcl

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	blockHeaderRe = regexp.MustCompile(`^(resource|data)\s+"([\w-]+)"\s+"([\w-]+)"\s*\{$`)
	nestedBlockRe = regexp.MustCompile(`^([\w-]+)\s*\{$`)
	assignRe      = regexp.MustCompile(`^([\w-]+)\s*=\s*(.+)$`)
	heredocRe     = regexp.MustCompile(`^<<-?(\w+)$`)
)

// ScanRecords recovers the records declared in an existing artifact. The scan
// is best-effort: it understands everything the renderer emits (strings,
// booleans, lists, heredocs, nested blocks) and degrades to raw expressions
// for anything else. Unparseable regions are skipped, never fatal.
func ScanRecords(src string) []*Record {
	var records []*Record
	lines := strings.Split(src, "\n")

	for i := 0; i < len(lines); {
		m := blockHeaderRe.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			i++
			continue
		}
		body, next := scanBody(lines, i+1)
		records = append(records, &Record{
			Kind: Kind(m[1]),
			Type: m[2],
			Name: m[3],
			Body: body,
		})
		i = next
	}
	return records
}

// scanBody consumes lines until the block's closing brace, returning the
// parsed body and the index of the first line after the block.
func scanBody(lines []string, start int) (*Body, int) {
	body := NewBody()
	i := start
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "}":
			return body, i + 1
		case line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//"):
			i++
		case nestedBlockRe.MatchString(line):
			key := nestedBlockRe.FindStringSubmatch(line)[1]
			nested, next := scanBody(lines, i+1)
			body.Set(key, BlockValue{Body: nested})
			i = next
		case assignRe.MatchString(line):
			m := assignRe.FindStringSubmatch(line)
			value, next := scanValue(lines, i, m[2])
			body.Set(m[1], value)
			i = next
		default:
			i++
		}
	}
	return body, i
}

func scanValue(lines []string, current int, rhs string) (Value, int) {
	rhs = strings.TrimSpace(rhs)

	if m := heredocRe.FindStringSubmatch(rhs); m != nil {
		return scanHeredoc(lines, current+1, m[1])
	}

	switch {
	case rhs == "true":
		return BoolValue(true), current + 1
	case rhs == "false":
		return BoolValue(false), current + 1
	case rhs == "[]":
		return ListValue{}, current + 1
	case rhs == "[":
		return scanList(lines, current+1)
	case strings.HasPrefix(rhs, "[") && strings.HasSuffix(rhs, "]"):
		return scanInlineList(rhs), current + 1
	case strings.HasPrefix(rhs, `"`) && strings.HasSuffix(rhs, `"`) && len(rhs) >= 2:
		if s, err := strconv.Unquote(rhs); err == nil {
			return StringValue(s), current + 1
		}
		return StringValue(strings.Trim(rhs, `"`)), current + 1
	default:
		return RawValue(rhs), current + 1
	}
}

func scanHeredoc(lines []string, start int, marker string) (Value, int) {
	var content []string
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == marker {
			return StringValue(strings.Join(content, "\n")), i + 1
		}
		content = append(content, lines[i])
	}
	// Unterminated heredoc: keep what was collected.
	return StringValue(strings.Join(content, "\n")), len(lines)
}

func scanList(lines []string, start int) (Value, int) {
	list := ListValue{}
	for i := start; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "]" {
			return list, i + 1
		}
		if item := scanListItem(line); item != nil {
			list = append(list, item)
		}
	}
	return list, len(lines)
}

func scanInlineList(rhs string) Value {
	inner := strings.TrimSpace(rhs[1 : len(rhs)-1])
	list := ListValue{}
	if inner == "" {
		return list
	}
	for _, part := range strings.Split(inner, ",") {
		if item := scanListItem(strings.TrimSpace(part)); item != nil {
			list = append(list, item)
		}
	}
	return list
}

func scanListItem(line string) Value {
	line = strings.TrimSuffix(strings.TrimSpace(line), ",")
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`) {
		if s, err := strconv.Unquote(line); err == nil {
			return StringValue(s)
		}
		return StringValue(strings.Trim(line, `"`))
	}
	return RawValue(line)
}
