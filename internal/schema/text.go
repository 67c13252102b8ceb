// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package schema

import (
	"fmt"
	"strconv"

	"github.com/westerndigitalcorporation/resgraph/internal/core"
)

// ParseValue parses the text form of a value of one of the builtin value
// types. Other value types have no text form.
func ParseValue(vt ValueType, s string) (interface{}, error) {
	var v interface{}
	var err error
	switch vt.Name() {
	case "bool":
		v, err = strconv.ParseBool(s)
	case "int32":
		var n int64
		n, err = strconv.ParseInt(s, 0, 32)
		v = int32(n)
	case "int64":
		v, err = strconv.ParseInt(s, 0, 64)
	case "uint32":
		var n uint64
		n, err = strconv.ParseUint(s, 0, 32)
		v = uint32(n)
	case "uint64":
		v, err = strconv.ParseUint(s, 0, 64)
	case "float32":
		var f float64
		f, err = strconv.ParseFloat(s, 32)
		v = float32(f)
	case "float64":
		v, err = strconv.ParseFloat(s, 64)
	case "string":
		v = s
	case "bytes":
		v = []byte(s)
	case "rid":
		v, err = core.ParseRID(s)
	default:
		return nil, fmt.Errorf("value type %q has no text form: %w", vt.Name(), core.ErrUnknownValueType.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("%q is not a %s: %w", s, vt.Name(), core.ErrWrongValueType.Error())
	}
	return v, nil
}

// FormatValue is the inverse of ParseValue for builtin value types, and
// falls back to %v for everything else.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case []byte:
		return strconv.Quote(string(t))
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprintf("%v", v)
}
