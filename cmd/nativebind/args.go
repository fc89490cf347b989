package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/layout"
)

// parseArg converts a command-line argument to the Go value the binding
// expects for p.
func parseArg(p bind.Param, s string) (any, error) {
	if p.Array != nil {
		return parseArray(*p.Array, s)
	}
	if p.Layout.Kind == layout.KindStruct || p.Layout.Kind == layout.KindArray {
		return parseBytes(s, p.Layout.Size())
	}
	return parseScalar(p.Layout, s)
}

func parseScalar(l layout.Layout, s string) (any, error) {
	s = strings.TrimSpace(s)
	bits := int(l.Size() * 8)
	switch l.Class {
	case layout.ClassSigned:
		return strconv.ParseInt(s, 0, bits)
	case layout.ClassUnsigned, layout.ClassAddress:
		return strconv.ParseUint(s, 0, bits)
	case layout.ClassFloat:
		return strconv.ParseFloat(s, bits)
	case layout.ClassBool:
		return strconv.ParseBool(s)
	}
	return nil, fmt.Errorf("cannot parse %s values", l.TypeName())
}

func parseArray(spec bind.ArraySpec, s string) (any, error) {
	if s == "null" {
		if !spec.Nullable {
			return nil, fmt.Errorf("array is not nullable")
		}
		return nil, nil
	}
	if text, ok := strings.CutPrefix(s, "s:"); ok {
		if spec.Elem.Size() != 1 {
			return nil, fmt.Errorf("strings need a byte array, have %s", spec.Elem.TypeName())
		}
		return append([]byte(text), 0), nil
	}

	var parts []string
	if s != "" {
		parts = strings.Split(s, ",")
	}
	switch spec.Elem.Class {
	case layout.ClassSigned:
		out := make([]int64, len(parts))
		for i, part := range parts {
			v, err := parseScalar(spec.Elem, part)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v.(int64)
		}
		return out, nil
	case layout.ClassUnsigned, layout.ClassAddress:
		out := make([]uint64, len(parts))
		for i, part := range parts {
			v, err := parseScalar(spec.Elem, part)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v.(uint64)
		}
		return out, nil
	case layout.ClassFloat:
		out := make([]float64, len(parts))
		for i, part := range parts {
			v, err := parseScalar(spec.Elem, part)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v.(float64)
		}
		return out, nil
	case layout.ClassBool:
		out := make([]bool, len(parts))
		for i, part := range parts {
			v, err := parseScalar(spec.Elem, part)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v.(bool)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot parse arrays of %s", spec.Elem.TypeName())
}

func parseBytes(s string, size uint64) ([]byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != size {
		return nil, fmt.Errorf("need %d bytes, got %d", size, len(data))
	}
	return data, nil
}

// formatValue renders a call result: bytes as hex, everything else with %v.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case uintptr:
		return fmt.Sprintf("%#x", x)
	}
	return fmt.Sprint(v)
}

// formatCall renders the result followed by any inout arrays, which hold
// the values written back by the call.
func formatCall(out any, args []any, params []bind.Param) string {
	parts := []string{formatValue(out)}
	for i, p := range params {
		if p.Array == nil || !p.Array.InOut || args[i] == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", p.Name, args[i]))
	}
	return strings.Join(parts, " ")
}
