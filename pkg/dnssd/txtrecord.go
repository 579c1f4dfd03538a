package dnssd

import (
	"sort"
	"strings"
)

// TXTValue is a single TXT property value. A nil value means the key
// was present without '=' (a boolean flag); an empty non-nil value
// means "key=" with an empty value. Values are binary-safe.
type TXTValue []byte

// TXTProperties maps TXT record keys to their values. Keys are unique;
// per RFC 6763 the first occurrence of a key wins.
type TXTProperties map[string]TXTValue

// ParseTXT decodes DNS TXT character-strings into properties.
// Entries without '=' become flags, "key=" an empty value. Empty
// strings and strings starting with '=' are ignored.
func ParseTXT(strs []string) TXTProperties {
	txt := make(TXTProperties, len(strs))
	for _, s := range strs {
		if s == "" || strings.HasPrefix(s, "=") {
			continue
		}
		key, value, found := strings.Cut(s, "=")
		if _, dup := txt[key]; dup {
			continue
		}
		if !found {
			txt[key] = nil
			continue
		}
		txt[key] = TXTValue(value)
	}
	return txt
}

// Strings encodes the properties back into TXT character-strings,
// sorted by key for deterministic output.
func (t TXTProperties) Strings() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v := t[k]
		if v == nil {
			out = append(out, k)
			continue
		}
		out = append(out, k+"="+string(v))
	}
	return out
}

// Get returns the value for key and whether the key is present.
// Flag keys return a nil value with ok=true.
func (t TXTProperties) Get(key string) (TXTValue, bool) {
	v, ok := t[key]
	return v, ok
}

// Clone returns a deep copy of the properties.
func (t TXTProperties) Clone() TXTProperties {
	if t == nil {
		return nil
	}
	cp := make(TXTProperties, len(t))
	for k, v := range t {
		if v == nil {
			cp[k] = nil
			continue
		}
		cp[k] = append(TXTValue(nil), v...)
	}
	return cp
}
