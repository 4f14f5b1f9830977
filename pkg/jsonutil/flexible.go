// Package jsonutil tolerates the loose JSON that language models emit:
// numbers where strings were asked for, quoted booleans, and scalars
// where arrays were expected.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleString converts a raw JSON value to a string, accepting
// strings, numbers, and booleans. Returns empty string for null/empty.
func FlexibleString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal))
		}
		return fmt.Sprintf("%g", numVal)
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal)
	}

	return string(raw)
}

// StringList is a []string that also accepts a bare scalar (treated as
// a single-element list) and coerces non-string elements to strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		// Not an array. Accept a bare scalar as a one-element list.
		if s := FlexibleString(data); s != "" {
			*l = StringList{s}
			return nil
		}
		*l = nil
		return nil
	}

	out := make(StringList, 0, len(raws))
	for _, raw := range raws {
		if s := FlexibleString(raw); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// BoolList is a []bool that also accepts quoted booleans ("true",
// "yes", "pass") and 0/1 numbers.
type BoolList []bool

func (l *BoolList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("expected a JSON array of booleans: %w", err)
	}

	out := make(BoolList, 0, len(raws))
	for _, raw := range raws {
		b, err := flexibleBool(raw)
		if err != nil {
			return err
		}
		out = append(out, b)
	}
	*l = out
	return nil
}

func flexibleBool(raw json.RawMessage) (bool, error) {
	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return boolVal, nil
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		switch strings.ToLower(strings.TrimSpace(strVal)) {
		case "true", "yes", "pass", "passed", "1":
			return true, nil
		case "false", "no", "fail", "failed", "0":
			return false, nil
		}
		return false, fmt.Errorf("cannot interpret %q as a boolean", strVal)
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		return numVal != 0, nil
	}

	return false, fmt.Errorf("cannot interpret %s as a boolean", string(raw))
}
