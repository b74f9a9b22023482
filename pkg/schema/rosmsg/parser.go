// Package rosmsg parses ROS1 and ROS2 textual .msg schema definitions into
// schema.Schema graphs, and computes the ROS1 connection-header MD5 sum.
package rosmsg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robocap/robocap/pkg/schema"
)

// fieldMatcher recognizes "type name" lines; ROS field names must start
// with a letter and contain only alphanumerics and underscores after that.
var fieldMatcher = regexp.MustCompile(`^([^\s]+)\s+([a-zA-Z][a-zA-Z0-9_]*)\s*$`)

// constantMatcher recognizes "type NAME = value" / "type NAME=value" lines,
// distinguishing them from fields by the presence of '=' before any '#'.
var constantMatcher = regexp.MustCompile(`^([^\s]+)\s+([A-Za-z][A-Za-z0-9_]*)\s*=\s*(.+)$`)

// ParseROS1 parses a ROS1 .msg definition for a message named name
// (fully-qualified, e.g. "sensor_msgs/Imu"), resolving nested types from
// siblings, a map of fully-qualified type name to its own .msg text. It
// returns the top-level schema.Schema and a map of every schema reachable
// from it (including itself), keyed by fully-qualified name, suitable for
// use as a schema.Resolver.
func ParseROS1(name string, text []byte, siblings map[string][]byte) (*schema.Schema, map[string]*schema.Schema, error) {
	p := &parser{siblings: siblings, out: make(map[string]*schema.Schema)}
	s, err := p.parseOne(name, string(text))
	if err != nil {
		return nil, nil, err
	}
	return s, p.out, nil
}

type parser struct {
	siblings map[string][]byte
	out      map[string]*schema.Schema
}

func (p *parser) parseOne(name, text string) (*schema.Schema, error) {
	if s, ok := p.out[name]; ok {
		return s, nil
	}
	parentPackage := ""
	if i := strings.Index(name, "/"); i >= 0 {
		parentPackage = name[:i]
	}

	s := &schema.Schema{Name: name}
	// Reserve the entry before recursing, so that a type which (incorrectly)
	// refers back to itself ends the recursion instead of looping forever
	// (the parser accepts it; schema.Compiler reports the cycle later);
	// well-formed ROS1 schemas never need this but it keeps the parser total.
	p.out[name] = s

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stripped := stripComment(line)
		if stripped == "" {
			continue
		}
		if m := constantMatcher.FindStringSubmatch(stripped); m != nil {
			typeName, constName, literal := m[1], m[2], strings.TrimSpace(m[3])
			if !schema.IsPrimitiveName(typeName) {
				return nil, fmt.Errorf("rosmsg: %s: line %d: constant %s has non-primitive type %q",
					name, i, constName, typeName)
			}
			s.Constants = append(s.Constants, schema.Constant{
				Name:      constName,
				Primitive: schema.Primitive(typeName),
				Literal:   literal,
			})
			continue
		}
		m := fieldMatcher.FindStringSubmatch(stripped)
		if m == nil {
			return nil, fmt.Errorf("rosmsg: %s: malformed field on line %d: %q", name, i, line)
		}
		fieldType, fieldName := m[1], m[2]
		ft, err := p.resolveFieldType(parentPackage, fieldType)
		if err != nil {
			return nil, fmt.Errorf("rosmsg: %s: field %s: %w", name, fieldName, err)
		}
		s.Fields = append(s.Fields, schema.Field{Name: fieldName, Type: ft})
	}
	p.out[name] = s
	return s, nil
}

// resolveFieldType parses a single field's type token (possibly an array
// suffix) into a schema.Type, recursing into siblings for Complex types.
func (p *parser) resolveFieldType(parentPackage, token string) (schema.Type, error) {
	isArray, base, bound, fixed := parseArraySuffix(token)
	scalar, err := p.resolveScalarType(parentPackage, base)
	if err != nil {
		return schema.Type{}, err
	}
	if !isArray {
		return scalar, nil
	}
	if fixed {
		return schema.Type{Kind: schema.KindArray, Length: bound, Elem: &scalar}, nil
	}
	return schema.Type{Kind: schema.KindSequence, Length: bound, Elem: &scalar}, nil
}

func (p *parser) resolveScalarType(parentPackage, base string) (schema.Type, error) {
	if bound, isBoundedString := parseBoundedString(base); isBoundedString {
		return schema.Type{Kind: schema.KindString, Bound: bound}, nil
	}
	if base == "string" {
		return schema.Type{Kind: schema.KindString}, nil
	}
	if schema.IsPrimitiveName(base) {
		return schema.Type{Kind: schema.KindPrimitive, Primitive: schema.Primitive(base)}, nil
	}

	// Complex type: resolve to a fully-qualified name and parse its
	// sibling definition, exactly mirroring the teacher's three
	// resolution rules (qualified match, unqualified-against-qualified
	// sibling, and the special-cased "Header").
	qualified := base
	switch {
	case strings.Contains(base, "/"):
		qualified = base
	case base == "Header":
		qualified = "std_msgs/Header"
	default:
		qualified = parentPackage + "/" + base
	}
	text, ok := p.siblings[qualified]
	if !ok {
		// ROS2 siblings are keyed "pkg/msg/Type" (see ParseROS2).
		if alt := normalizeROS2Name(qualified); alt != qualified {
			if text, ok = p.siblings[alt]; ok {
				qualified = alt
			}
		}
	}
	if !ok {
		text, ok = p.siblings[base]
		qualified = base
	}
	if !ok {
		return schema.Type{}, fmt.Errorf("dependency %s not found", qualified)
	}
	if _, err := p.parseOne(qualified, string(text)); err != nil {
		return schema.Type{}, err
	}
	return schema.Type{Kind: schema.KindComplex, ComplexName: qualified}, nil
}

// parseArraySuffix recognizes "type[]" (unbounded sequence), "type[N]"
// (fixed array), and ROS2's "type[<=N]" (bounded sequence, capacity N,
// still a sequence rather than a fixed array).
func parseArraySuffix(s string) (isArray bool, base string, bound int, fixed bool) {
	if !strings.HasSuffix(s, "]") {
		return false, s, 0, false
	}
	left := strings.LastIndex(s, "[")
	if left < 0 {
		return false, s, 0, false
	}
	base = s[:left]
	size := s[left+1 : len(s)-1]
	if size == "" {
		return true, base, 0, false
	}
	if bounded := strings.TrimPrefix(size, "<="); bounded != size {
		n, err := strconv.Atoi(bounded)
		if err != nil {
			return false, s, 0, false
		}
		return true, base, n, false
	}
	n, err := strconv.Atoi(size)
	if err != nil {
		return false, s, 0, false
	}
	return true, base, n, true
}

// parseBoundedString recognizes ROS2's "string<=N" bounded-string syntax.
func parseBoundedString(s string) (bound int, ok bool) {
	if !strings.HasPrefix(s, "string<=") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "string<="))
	if err != nil {
		return 0, false
	}
	return n, true
}

func stripComment(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		return strings.TrimSpace(line[:i])
	}
	return line
}

// SplitConcatenatedDefinition splits a ROS1 bag connection header's
// "message_definition" full text field, which concatenates the top-level
// definition with every dependency's definition separated by a line of 80
// '=' characters and a "MSG: pkg/Type" header, into (topLevelText,
// siblingsByName).
func SplitConcatenatedDefinition(full string) (string, map[string][]byte) {
	sections := splitOnSeparator(full)
	siblings := make(map[string][]byte, len(sections)-1)
	for _, sec := range sections[1:] {
		lines := strings.SplitN(sec, "\n", 2)
		header := strings.TrimSpace(lines[0])
		rosType := strings.TrimPrefix(header, "MSG: ")
		var body string
		if len(lines) > 1 {
			body = lines[1]
		}
		siblings[rosType] = []byte(body)
	}
	return sections[0], siblings
}

func splitOnSeparator(s string) []string {
	const sep = "================================================================================"
	parts := strings.Split(s, sep)
	for i, p := range parts {
		parts[i] = strings.TrimPrefix(p, "\n")
	}
	return parts
}
