package graph

import (
	"strings"
	"unicode"
)

// Keys lays out one graph inside a Redis keyspace. All keys share the
// {name} hash tag so scripts touching several keys stay in one cluster slot.
type Keys struct {
	prefix string
}

func NewKeys(name string) Keys {
	return Keys{prefix: "dg:{" + sanitizeName(strings.TrimSpace(name)) + "}"}
}

// Sources is the set of source-role node ids.
func (k Keys) Sources() string { return k.prefix + ":src" }

// Destinations is the set of destination-role node ids.
func (k Keys) Destinations() string { return k.prefix + ":dst" }

// Edges is the hash of destination id -> duration for one source.
func (k Keys) Edges(source string) string {
	return k.prefix + ":edges:" + strings.TrimSpace(source)
}

func sanitizeName(s string) string {
	if s == "" {
		return "default"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			out = '-'
		}
		if out == '-' && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
