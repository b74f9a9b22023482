package rosmsg

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/robocap/robocap/pkg/schema"
)

// MD5 computes the ROS1 connection-header checksum for s: constants in
// declaration order, then fields in declaration order, each rendered as
// "type name" (arrays keep their bracket suffix; Complex fields substitute
// the referenced type's own MD5 in place of its name), joined by newlines
// and hashed. siblings must contain every schema reachable from s (as
// returned alongside it by ParseROS1/ParseROS2), used to resolve nested
// MD5s.
func MD5(s *schema.Schema, siblings map[string]*schema.Schema) (string, error) {
	text, err := md5Text(s, siblings, make(map[string]string))
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:]), nil
}

func md5Text(s *schema.Schema, siblings map[string]*schema.Schema, memo map[string]string) (string, error) {
	var lines []string
	for _, c := range s.Constants {
		lines = append(lines, fmt.Sprintf("%s %s=%s", c.Primitive, c.Name, c.Literal))
	}
	for _, f := range s.Fields {
		rendered, err := renderFieldForMD5(f, siblings, memo)
		if err != nil {
			return "", err
		}
		lines = append(lines, rendered)
	}
	return strings.Join(lines, "\n"), nil
}

func renderFieldForMD5(f schema.Field, siblings map[string]*schema.Schema, memo map[string]string) (string, error) {
	switch f.Type.Kind {
	case schema.KindPrimitive:
		return fmt.Sprintf("%s %s", f.Type.Primitive, f.Name), nil
	case schema.KindString, schema.KindWString:
		return fmt.Sprintf("string %s", f.Name), nil
	case schema.KindComplex:
		sum, err := complexMD5(f.Type.ComplexName, siblings, memo)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s", sum, f.Name), nil
	case schema.KindArray, schema.KindSequence:
		return renderArrayForMD5(f, siblings, memo)
	default:
		return "", fmt.Errorf("rosmsg: md5: unsupported field kind %v", f.Type.Kind)
	}
}

func renderArrayForMD5(f schema.Field, siblings map[string]*schema.Schema, memo map[string]string) (string, error) {
	elem := f.Type.Elem
	suffix := "[]"
	if f.Type.Kind == schema.KindArray {
		suffix = fmt.Sprintf("[%d]", f.Type.Length)
	}
	switch elem.Kind {
	case schema.KindPrimitive:
		return fmt.Sprintf("%s%s %s", elem.Primitive, suffix, f.Name), nil
	case schema.KindString, schema.KindWString:
		return fmt.Sprintf("string%s %s", suffix, f.Name), nil
	case schema.KindComplex:
		sum, err := complexMD5(elem.ComplexName, siblings, memo)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s%s %s", sum, suffix, f.Name), nil
	default:
		return "", fmt.Errorf("rosmsg: md5: nested arrays are not representable in ROS1 msg text")
	}
}

func complexMD5(name string, siblings map[string]*schema.Schema, memo map[string]string) (string, error) {
	if sum, ok := memo[name]; ok {
		return sum, nil
	}
	sub, ok := siblings[name]
	if !ok {
		return "", fmt.Errorf("rosmsg: md5: missing dependency %s", name)
	}
	text, err := md5Text(sub, siblings, memo)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(text))
	hexSum := hex.EncodeToString(sum[:])
	memo[name] = hexSum
	return hexSum, nil
}
