// Package query builds URL query strings from parameter lists where some
// entries may be absent. Absent entries are never encoded.
package query

import (
	"net/url"
	"strconv"
	"strings"
)

// Param is a single named query parameter. The zero value is absent.
type Param struct {
	Key     string
	Value   string
	present bool
}

// Present reports whether the parameter carries a value.
func (p Param) Present() bool { return p.present }

// Set returns a present parameter.
func Set(key, value string) Param {
	return Param{Key: key, Value: value, present: true}
}

// Absent returns a parameter that is dropped on encoding.
func Absent(key string) Param {
	return Param{Key: key}
}

// Opt is present only when v is non-nil.
func Opt(key string, v *string) Param {
	if v == nil {
		return Absent(key)
	}
	return Set(key, *v)
}

// Bool encodes v as "true" or "false".
func Bool(key string, v bool) Param {
	return Set(key, strconv.FormatBool(v))
}

// OptBool is present only when v is non-nil.
func OptBool(key string, v *bool) Param {
	if v == nil {
		return Absent(key)
	}
	return Bool(key, *v)
}

// Int encodes v in base 10.
func Int(key string, v int) Param {
	return Set(key, strconv.Itoa(v))
}

// Strings joins vs with commas. An empty slice is absent.
func Strings(key string, vs []string) Param {
	if len(vs) == 0 {
		return Absent(key)
	}
	return Set(key, strings.Join(vs, ","))
}

// Encoder is implemented by anything that can describe itself as query
// parameters.
type Encoder interface {
	Query() List
}

// List is an ordered list of parameters.
type List []Param

// Query implements Encoder.
func (l List) Query() List { return l }

// Values converts the list to url.Values. When a key repeats, the last
// present value wins so that every key is encoded exactly once.
func (l List) Values() url.Values {
	v := make(url.Values, len(l))
	for _, p := range l {
		if !p.present {
			continue
		}
		v.Set(p.Key, p.Value)
	}
	return v
}

// Encode renders the list as a percent-encoded, '&'-joined query string
// sorted by key. An empty or fully absent list yields "".
func (l List) Encode() string {
	return l.Values().Encode()
}

// Encode is a nil-safe shortcut for e.Query().Encode().
func Encode(e Encoder) string {
	if e == nil {
		return ""
	}
	l := e.Query()
	if l == nil {
		return ""
	}
	return l.Encode()
}

// Parse turns "key=value" pairs into a list, the way command line arguments
// are usually given. A bare "key" is treated as an empty present value.
func Parse(pairs []string) List {
	l := make(List, 0, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		if key == "" {
			continue
		}
		l = append(l, Set(key, value))
	}
	return l
}
