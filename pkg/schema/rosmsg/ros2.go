package rosmsg

import (
	"strings"

	"github.com/robocap/robocap/pkg/schema"
)

// ParseROS2 parses a ROS2 .msg definition. The grammar is a superset of
// ROS1's, adding bounded strings ("string<=N") and bounded sequences
// ("type[<=N]"), both recognized by resolveScalarType/parseArraySuffix in
// parser.go, differing mainly in package-qualified type names using a
// "/msg/" infix (e.g. "std_msgs/msg/Header" instead of "std_msgs/Header").
// siblings is keyed the same way. name should include the "/msg/" infix;
// unqualified references within the text are resolved against the
// message's own package with that infix inserted.
func ParseROS2(name string, text []byte, siblings map[string][]byte) (*schema.Schema, map[string]*schema.Schema, error) {
	normalized := make(map[string][]byte, len(siblings))
	for k, v := range siblings {
		normalized[normalizeROS2Name(k)] = v
	}
	p := &parser{siblings: normalized, out: make(map[string]*schema.Schema)}
	s, err := p.parseOne(normalizeROS2Name(name), string(text))
	if err != nil {
		return nil, nil, err
	}
	return s, p.out, nil
}

// normalizeROS2Name rewrites a bare "pkg/Type" reference into the ROS2
// "pkg/msg/Type" convention used by sibling lookups; names already
// containing "/msg/" (or "/srv/", "/action/") pass through unchanged.
func normalizeROS2Name(name string) string {
	if strings.Contains(name, "/msg/") || strings.Contains(name, "/srv/") || strings.Contains(name, "/action/") {
		return name
	}
	parts := strings.SplitN(name, "/", 2)
	if len(parts) != 2 {
		return name
	}
	return parts[0] + "/msg/" + parts[1]
}
