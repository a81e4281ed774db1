package catalog

import (
	"strings"

	"github.com/koustreak/dbspec/internal/model"
)

var privilegeCodes = map[byte]string{
	'r': "select",
	'w': "update",
	'a': "insert",
	'd': "delete",
	'D': "truncate",
	'x': "references",
	't': "trigger",
	'X': "execute",
	'U': "usage",
	'C': "create",
	'c': "connect",
	'T': "temporary",
	'm': "maintain",
}

// ParseACL decodes a comma-separated list of aclitems such as
// "alice=arw/bob,=r/bob" into grants. An empty grantee is PUBLIC. Entries
// for owner are left out: an owner holds every privilege implicitly.
func ParseACL(acl, owner string) []model.Grant {
	var out []model.Grant
	for _, item := range splitACL(acl) {
		eq := lastUnquoted(item, '=')
		if eq < 0 {
			continue
		}
		grantee := unquoteRole(item[:eq])
		rest := item[eq+1:]
		if slash := lastUnquoted(rest, '/'); slash >= 0 {
			rest = rest[:slash]
		}
		if grantee == "" {
			grantee = "PUBLIC"
		}
		if owner != "" && grantee == owner {
			continue
		}
		var privs []string
		for i := 0; i < len(rest); i++ {
			if p, ok := privilegeCodes[rest[i]]; ok {
				privs = append(privs, p)
			}
		}
		if len(privs) > 0 {
			out = append(out, model.Grant{Grantee: grantee, Privileges: privs})
		}
	}
	return out
}

// splitACL splits on commas outside double quotes.
func splitACL(acl string) []string {
	acl = strings.Trim(strings.TrimSpace(acl), "{}")
	if acl == "" {
		return nil
	}
	var out []string
	quoted := false
	start := 0
	for i := 0; i < len(acl); i++ {
		switch acl[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				out = append(out, acl[start:i])
				start = i + 1
			}
		}
	}
	return append(out, acl[start:])
}

func lastUnquoted(s string, c byte) int {
	quoted := false
	idx := -1
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			quoted = !quoted
		case s[i] == c && !quoted:
			idx = i
		}
	}
	return idx
}

func unquoteRole(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}
