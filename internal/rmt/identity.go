package rmt

import "strings"

// IdentityKey is the normalized comparison key derived from a record's
// identity field. The mapping from raw values is many-to-one and
// deterministic.
type IdentityKey string

// gmailDomains are the domains for which Google ignores dots in the local
// part and everything after a "+".
var gmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// Normalizer converts raw identity-field values into IdentityKeys.
// It is a total function: malformed input normalizes to its trimmed,
// lower-cased self and simply never collides with well-formed duplicates.
type Normalizer struct {
	// GmailAware enables Gmail dot-insensitivity and plus-tag stripping.
	GmailAware bool
}

// NewNormalizer returns a Normalizer with Gmail handling enabled.
func NewNormalizer() *Normalizer {
	return &Normalizer{GmailAware: true}
}

// Normalize derives the IdentityKey for raw. The default normalization is
// trim plus lower-case. For addresses in a Gmail domain (when GmailAware
// is set) the local part additionally has all dots removed and is
// truncated at the first "+", so "a.b+tag@gmail.com" and "ab@gmail.com"
// produce the same key.
func (n *Normalizer) Normalize(raw string) IdentityKey {
	v := strings.ToLower(strings.TrimSpace(raw))
	if !n.GmailAware {
		return IdentityKey(v)
	}

	at := strings.LastIndex(v, "@")
	if at <= 0 || at == len(v)-1 {
		return IdentityKey(v)
	}
	local, domain := v[:at], v[at+1:]
	if !gmailDomains[domain] {
		return IdentityKey(v)
	}

	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	local = strings.ReplaceAll(local, ".", "")
	return IdentityKey(local + "@" + domain)
}
