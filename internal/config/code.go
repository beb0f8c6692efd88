package config

import "fmt"

// MaxCodeLen is the longest tap-code the lock accepts.
const MaxCodeLen = 8

// Code is a bounded string over the alphabet {0,1}. The zero value is the
// empty code.
type Code struct {
	bits [MaxCodeLen]byte
	n    int
}

// ParseCode accepts only '0' and '1' and at most MaxCodeLen characters.
func ParseCode(s string) (Code, error) {
	if len(s) > MaxCodeLen {
		return Code{}, fmt.Errorf("code %q longer than %d", s, MaxCodeLen)
	}
	var c Code
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return Code{}, fmt.Errorf("code %q: invalid character %q", s, s[i])
		}
		c.Append(s[i])
	}
	return c, nil
}

// MustParseCode is ParseCode for literals.
func MustParseCode(s string) Code {
	c, err := ParseCode(s)
	if err != nil {
		panic(err)
	}
	return c
}

// SanitizeCode keeps the '0' and '1' characters of s, up to MaxCodeLen.
func SanitizeCode(s string) Code {
	var c Code
	for i := 0; i < len(s) && c.n < MaxCodeLen; i++ {
		if s[i] == '0' || s[i] == '1' {
			c.Append(s[i])
		}
	}
	return c
}

// Append adds one bit character. It reports false, leaving c unchanged, when
// c is full or bit is not '0' or '1'.
func (c *Code) Append(bit byte) bool {
	if c.n == MaxCodeLen || (bit != '0' && bit != '1') {
		return false
	}
	c.bits[c.n] = bit
	c.n++
	return true
}

// Len returns the number of characters.
func (c Code) Len() int { return c.n }

// Full reports whether another character would not fit.
func (c Code) Full() bool { return c.n == MaxCodeLen }

// Clear empties c.
func (c *Code) Clear() { *c = Code{} }

// String returns the code as ASCII '0'/'1' characters.
func (c Code) String() string { return string(c.bits[:c.n]) }

// Equal compares two codes.
func (c Code) Equal(o Code) bool { return c.String() == o.String() }

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Foreign characters are
// dropped and the result is truncated, matching what the settings page
// accepts.
func (c *Code) UnmarshalText(b []byte) error {
	*c = SanitizeCode(string(b))
	return nil
}
