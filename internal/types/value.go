/*
Copyright 2024 The atc-router Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package types

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/gravitational/trace"
)

// Value is a tagged variant carrying exactly one payload per Type. Regex
// values are only ever produced from rule literals (never pushed into an
// evaluation context) and own a compiled pattern.
type Value struct {
	Type Type

	str   string
	i     int64
	ip    netip.Addr
	cidr  netip.Prefix
	re    *regexp.Regexp
	rePat string // original source text, kept for prefilter/regex-syntax introspection
}

// NewString builds a String value. Embedded NUL bytes are allowed; UTF-8
// validity is the caller's responsibility (rcontext.Context.AddValue enforces it at
// the boundary where untrusted bytes enter the system).
func NewString(s string) Value { return Value{Type: String, str: s} }

// NewInt builds a signed 64-bit Int value.
func NewInt(i int64) Value { return Value{Type: Int, i: i} }

// NewIPAddr parses and builds an IpAddr value.
func NewIPAddr(s string) (Value, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Value{}, trace.BadParameter("invalid IP address %q: %v", s, err)
	}
	return Value{Type: IPAddr, ip: addr}, nil
}

// NewIPAddrFromAddr wraps an already-parsed netip.Addr.
func NewIPAddrFromAddr(addr netip.Addr) Value {
	return Value{Type: IPAddr, ip: addr}
}

// NewIPCIDR parses and builds an IpCidr value.
func NewIPCIDR(s string) (Value, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Value{}, trace.BadParameter("invalid CIDR %q: %v", s, err)
	}
	return Value{Type: IPCIDR, cidr: p.Masked()}, nil
}

// NewRegex compiles pattern and builds a Regex value. Compilation happens
// once, at bind time, per spec.md §4.2.
func NewRegex(pattern string) (Value, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: Regex, re: re, rePat: pattern}, nil
}

func (v Value) Str() string              { return v.str }
func (v Value) Int() int64               { return v.i }
func (v Value) IPAddr() netip.Addr       { return v.ip }
func (v Value) IPCIDR() netip.Prefix     { return v.cidr }
func (v Value) Regexp() *regexp.Regexp   { return v.re }
func (v Value) RegexPattern() string     { return v.rePat }

// String renders the value the way it would appear in diagnostics.
func (v Value) String() string {
	switch v.Type {
	case String:
		return v.str
	case Int:
		return strconv.FormatInt(v.i, 10)
	case IPAddr:
		return v.ip.String()
	case IPCIDR:
		return v.cidr.String()
	case Regex:
		return v.rePat
	default:
		return fmt.Sprintf("<invalid value tag %d>", v.Type)
	}
}

// ValidateUTF8 reports the first invalid byte sequence in s, formatted per
// spec.md §7 ("invalid utf-8 sequence of N bytes from index K"), or nil if s
// is valid UTF-8. Embedded NUL bytes are valid UTF-8 and are accepted.
func ValidateUTF8(s string) error {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			// size is 0 only for an empty remainder, which the loop bound
			// already excludes; a genuine decode failure reports size 1.
			n := size
			if n == 0 {
				n = 1
			}
			return trace.BadParameter("invalid utf-8 sequence of %d bytes from index %d", n, i)
		}
		i += size
	}
	return nil
}
