package common

import (
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gmail-mcp/internal/toolerr"
)

// Args reads tool arguments. Every accessor fails with a validation error
// when the argument has the wrong type.
type Args map[string]interface{}

// ArgsFrom returns the arguments of request.
func ArgsFrom(request mcp.CallToolRequest) Args {
	args := request.GetArguments()
	if args == nil {
		return Args{}
	}
	return Args(args)
}

// RequiredString returns a string argument that must be present and
// non-blank.
func (a Args) RequiredString(name string) (string, error) {
	s, err := a.String(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", toolerr.Missing(name)
	}
	return s, nil
}

// String returns a string argument, or "" when absent.
func (a Args) String(name string) (string, error) {
	p, err := a.OptionalString(name)
	if err != nil || p == nil {
		return "", err
	}
	return *p, nil
}

// OptionalString returns nil when the argument is absent or null.
func (a Args) OptionalString(name string) (*string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, toolerr.Validation("%s must be a string, got %T", name, v)
	}
	return &s, nil
}

// Bool returns a boolean argument, or def when absent.
func (a Args) Bool(name string, def bool) (bool, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, toolerr.Validation("%s must be a boolean, got %T", name, v)
	}
	return b, nil
}

// Int returns an integer argument within [min, max], or def when absent.
// Out-of-range values are rejected, not clamped.
func (a Args) Int(name string, def, min, max int64) (int64, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	var n int64
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, toolerr.Validation("%s must be an integer, got %v", name, x)
		}
		n = int64(x)
	case int:
		n = int64(x)
	case int64:
		n = x
	default:
		return 0, toolerr.Validation("%s must be an integer, got %T", name, v)
	}
	if n < min || n > max {
		return 0, toolerr.Validation("%s must be between %d and %d, got %d", name, min, max, n)
	}
	return n, nil
}

// StringSlice returns an array-of-strings argument, or nil when absent.
func (a Args) StringSlice(name string) ([]string, error) {
	p, err := a.OptionalStringSlice(name)
	if err != nil || p == nil {
		return nil, err
	}
	return *p, nil
}

// OptionalStringSlice distinguishes an absent argument (nil) from an empty
// array.
func (a Args) OptionalStringSlice(name string) (*[]string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return nil, nil
	}
	var out []string
	switch x := v.(type) {
	case []string:
		out = append([]string{}, x...)
	case []interface{}:
		out = make([]string, 0, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, toolerr.Validation("%s[%d] must be a string, got %T", name, i, item)
			}
			out = append(out, s)
		}
	default:
		return nil, toolerr.Validation("%s must be an array of strings, got %T", name, v)
	}
	return &out, nil
}
