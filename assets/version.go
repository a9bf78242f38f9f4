package assets

import (
	"strings"

	"github.com/saiset-co/sai-assets/types"
)

const versionSeparator = "|"

// ComputeVersion joins the distinct component versions of configs in order of
// first occurrence. An empty set yields "".
func ComputeVersion(configs []types.BundleConfiguration) string {
	seen := make(map[string]struct{}, len(configs))
	versions := make([]string, 0, len(configs))

	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		v := cfg.ComponentVersion()
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		versions = append(versions, v)
	}

	return strings.Join(versions, versionSeparator)
}
