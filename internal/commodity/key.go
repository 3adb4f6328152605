// Package commodity provides the canonical commodity lookup key.
//
// Every place that needs commodity identity (site commodity matching,
// carrier order and cargo aggregation) must use Key from this package;
// a second normalization helper is a correctness bug, not a style choice.
package commodity

import "strings"

const nameSuffix = "_name"

// Key canonicalizes a raw journal commodity identifier into a stable
// comparison key. The journal uses three spellings for the same commodity:
// a plain lowercase token ("steel"), a sentinel-wrapped symbol
// ("$steel_name;") and a display-cased name ("Steel"). All three map to
// the same key.
func Key(raw string) string {
	k := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(k, "$") && strings.HasSuffix(k, ";") {
		k = k[1 : len(k)-1]
	}
	k = strings.TrimSuffix(k, nameSuffix)
	return k
}

// DisplayName picks the best human-readable name from a raw identifier
// and an optional localised form. Falls back to the normalized key when
// no localised name is present.
func DisplayName(raw, localised string) string {
	if localised != "" {
		return localised
	}
	if strings.HasPrefix(raw, "$") {
		return Key(raw)
	}
	return raw
}
