// Package report evaluates JSONPath checks and extractions against JSON
// report files produced by a job's script phase.
package report

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/gauntletci/gauntlet/internal/domain"
)

// Evaluate applies the check specs against the report body.
// A body that is not valid JSON fails every check.
func Evaluate(body []byte, checks map[string]domain.CheckSpec) []domain.CheckResult {
	if len(checks) == 0 {
		return []domain.CheckResult{}
	}

	exprs := make([]string, 0, len(checks))
	for e := range checks {
		exprs = append(exprs, e)
	}
	sort.Strings(exprs) // stable output for tests/UI

	doc, err := parseJSON(body)
	if err != nil {
		out := make([]domain.CheckResult, 0, len(exprs))
		for _, expr := range exprs {
			out = append(out, jsonPathChecks(expr, checks[expr], nil,
				fmt.Errorf("report is not valid JSON"))...)
		}
		return out
	}

	var out []domain.CheckResult
	for _, expr := range exprs {
		val, getErr := jsonpath.Get(expr, doc)
		out = append(out, jsonPathChecks(expr, checks[expr], val, getErr)...)
	}

	return out
}

func jsonPathChecks(expr string, c domain.CheckSpec, val any, getErr error) []domain.CheckResult {
	var out []domain.CheckResult
	if c.Exists {
		out = append(out, checkExists(expr, val, getErr))
	}
	if c.Eq != nil {
		out = append(out, checkEq(expr, val, getErr, *c.Eq))
	}
	if c.Contains != nil {
		out = append(out, checkContains(expr, val, getErr, *c.Contains))
	}
	if c.Matches != nil {
		out = append(out, checkMatches(expr, val, getErr, *c.Matches))
	}
	if c.Gt != nil {
		out = append(out, checkGt(expr, val, getErr, *c.Gt))
	}
	if c.Lt != nil {
		out = append(out, checkLt(expr, val, getErr, *c.Lt))
	}
	return out
}

func checkExists(expr string, val any, getErr error) domain.CheckResult {
	if getErr != nil {
		return domain.CheckResult{
			Name:    "jsonpath.exists",
			Passed:  false,
			Message: fmt.Sprintf("invalid jsonpath %q: %v", expr, getErr),
		}
	}
	if isEmptyValue(val) {
		return domain.CheckResult{
			Name:    "jsonpath.exists",
			Passed:  false,
			Message: fmt.Sprintf("jsonpath %q: expected value to exist, got empty", expr),
		}
	}
	return domain.CheckResult{
		Name:    "jsonpath.exists",
		Passed:  true,
		Message: fmt.Sprintf("jsonpath %q exists", expr),
	}
}

func checkEq(expr string, val any, getErr error, expected string) domain.CheckResult {
	if getErr != nil {
		return failed("jsonpath.eq", expr, getErr)
	}
	s, err := valueToString(val)
	if err != nil {
		return failed("jsonpath.eq", expr, err)
	}
	if s == expected {
		return domain.CheckResult{
			Name:    "jsonpath.eq",
			Passed:  true,
			Message: fmt.Sprintf("jsonpath %q eq %q", expr, expected),
		}
	}
	return domain.CheckResult{
		Name:    "jsonpath.eq",
		Passed:  false,
		Message: fmt.Sprintf("jsonpath %q: expected %q, got %q", expr, expected, s),
	}
}

func checkContains(expr string, val any, getErr error, sub string) domain.CheckResult {
	if getErr != nil {
		return failed("jsonpath.contains", expr, getErr)
	}
	s, err := valueToString(val)
	if err != nil {
		return failed("jsonpath.contains", expr, err)
	}
	if strings.Contains(s, sub) {
		return domain.CheckResult{
			Name:    "jsonpath.contains",
			Passed:  true,
			Message: fmt.Sprintf("jsonpath %q contains %q", expr, sub),
		}
	}
	return domain.CheckResult{
		Name:    "jsonpath.contains",
		Passed:  false,
		Message: fmt.Sprintf("jsonpath %q: %q does not contain %q", expr, s, sub),
	}
}

func checkMatches(expr string, val any, getErr error, pattern string) domain.CheckResult {
	if getErr != nil {
		return failed("jsonpath.matches", expr, getErr)
	}
	s, err := valueToString(val)
	if err != nil {
		return failed("jsonpath.matches", expr, err)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return domain.CheckResult{
			Name:    "jsonpath.matches",
			Passed:  false,
			Message: fmt.Sprintf("jsonpath %q: invalid regex %q: %v", expr, pattern, err),
		}
	}
	if re.MatchString(s) {
		return domain.CheckResult{
			Name:    "jsonpath.matches",
			Passed:  true,
			Message: fmt.Sprintf("jsonpath %q matches %q", expr, pattern),
		}
	}
	return domain.CheckResult{
		Name:    "jsonpath.matches",
		Passed:  false,
		Message: fmt.Sprintf("jsonpath %q: %q does not match %q", expr, s, pattern),
	}
}

func checkGt(expr string, val any, getErr error, threshold float64) domain.CheckResult {
	if getErr != nil {
		return failed("jsonpath.gt", expr, getErr)
	}
	f, err := valueToFloat64(val)
	if err != nil {
		return failed("jsonpath.gt", expr, err)
	}
	if f > threshold {
		return domain.CheckResult{
			Name:    "jsonpath.gt",
			Passed:  true,
			Message: fmt.Sprintf("jsonpath %q: %v > %v", expr, f, threshold),
		}
	}
	return domain.CheckResult{
		Name:    "jsonpath.gt",
		Passed:  false,
		Message: fmt.Sprintf("jsonpath %q: expected > %v, got %v", expr, threshold, f),
	}
}

func checkLt(expr string, val any, getErr error, threshold float64) domain.CheckResult {
	if getErr != nil {
		return failed("jsonpath.lt", expr, getErr)
	}
	f, err := valueToFloat64(val)
	if err != nil {
		return failed("jsonpath.lt", expr, err)
	}
	if f < threshold {
		return domain.CheckResult{
			Name:    "jsonpath.lt",
			Passed:  true,
			Message: fmt.Sprintf("jsonpath %q: %v < %v", expr, f, threshold),
		}
	}
	return domain.CheckResult{
		Name:    "jsonpath.lt",
		Passed:  false,
		Message: fmt.Sprintf("jsonpath %q: expected < %v, got %v", expr, threshold, f),
	}
}

func failed(name, expr string, err error) domain.CheckResult {
	return domain.CheckResult{
		Name:    name,
		Passed:  false,
		Message: fmt.Sprintf("jsonpath %q: %v", expr, err),
	}
}

// Extract pulls named values from a JSON report body using JSONPath rules.
// rules: map[varName]jsonPathExpr
//
// Policy:
// - If body is not JSON -> every rule fails (no values extracted).
// - If a rule fails -> it's reported in ExtractResult; other rules still run.
func Extract(body []byte, rules map[string]string) (domain.Vars, []domain.ExtractResult) {
	if len(rules) == 0 {
		return domain.Vars{}, []domain.ExtractResult{}
	}

	keys := make([]string, 0, len(rules))
	for k := range rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc, err := parseJSON(body)
	if err != nil {
		out := make([]domain.ExtractResult, 0, len(keys))
		for _, name := range keys {
			expr := strings.TrimSpace(rules[name])
			out = append(out, domain.ExtractResult{
				Name:    name,
				Success: false,
				Message: fmt.Sprintf("extract %q (%s): report is not valid JSON", name, expr),
			})
		}
		return domain.Vars{}, out
	}

	extracted := domain.Vars{}
	results := make([]domain.ExtractResult, 0, len(keys))

	for _, name := range keys {
		expr := strings.TrimSpace(rules[name])
		if expr == "" {
			results = append(results, domain.ExtractResult{
				Name:    name,
				Success: false,
				Message: fmt.Sprintf("extract %q: empty jsonpath expression", name),
			})
			continue
		}

		val, getErr := jsonpath.Get(expr, doc)
		if getErr != nil {
			results = append(results, domain.ExtractResult{
				Name:    name,
				Success: false,
				Message: fmt.Sprintf("extract %q (%s): jsonpath error: %v", name, expr, getErr),
			})
			continue
		}

		if isEmptyValue(val) {
			results = append(results, domain.ExtractResult{
				Name:    name,
				Success: false,
				Message: fmt.Sprintf("extract %q (%s): no value found", name, expr),
			})
			continue
		}

		s, convErr := valueToString(val)
		if convErr != nil {
			results = append(results, domain.ExtractResult{
				Name:    name,
				Success: false,
				Message: fmt.Sprintf("extract %q (%s): cannot convert value to string: %v", name, expr, convErr),
			})
			continue
		}

		extracted[name] = s
		results = append(results, domain.ExtractResult{
			Name:    name,
			Success: true,
			Message: fmt.Sprintf("extracted %q", name),
		})
	}

	return extracted, results
}

func parseJSON(body []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func valueToString(v any) (string, error) {
	// Common case: jsonpath returns a slice with 1 element.
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return "", fmt.Errorf("empty array")
		}
		if len(arr) == 1 {
			return valueToString(arr[0])
		}
		b, err := json.Marshal(arr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case nil:
		return "", fmt.Errorf("value is null")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func valueToFloat64(v any) (float64, error) {
	if arr, ok := v.([]any); ok && len(arr) == 1 {
		return valueToFloat64(arr[0])
	}

	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}
