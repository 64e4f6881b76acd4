package fetch

import (
	"slices"
	"strings"
)

// ClientIDVar is the placeholder replaced with the configured client id.
const ClientIDVar = "CLIENTID"

// Expand replaces every %NAME placeholder in url whose NAME is a key of vars.
// Longer names are replaced first so that one name being a prefix of
// another does not matter. Unknown placeholders are left as they are.
func Expand(url string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(url, "%") {
		return url
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		if name != "" {
			names = append(names, name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		if d := len(b) - len(a); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "%"+name, vars[name])
	}
	return strings.NewReplacer(pairs...).Replace(url)
}
