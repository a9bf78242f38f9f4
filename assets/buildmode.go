package assets

import (
	"os"
	"strings"

	"github.com/saiset-co/sai-assets/buildinfo"
	"github.com/saiset-co/sai-assets/types"
)

const EnvBuildMode = "SAI_ASSETS_BUILD_MODE"

// ResolveBuildMode picks the first non-empty mode from config, environment and
// link-time build info. Only an explicit "debug" selects debug; every other
// value, including none at all, is treated as release.
func ResolveBuildMode(config *types.AssetsConfig, info *buildinfo.Info) string {
	candidates := make([]string, 0, 3)
	if config != nil {
		candidates = append(candidates, config.BuildMode)
	}
	candidates = append(candidates, os.Getenv(EnvBuildMode))
	if info != nil {
		candidates = append(candidates, info.Mode)
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.EqualFold(c, buildinfo.ModeDebug) {
			return buildinfo.ModeDebug
		}
		return buildinfo.ModeRelease
	}

	return buildinfo.ModeRelease
}

// ResolveOptimize returns the explicit optimize override when configured and
// otherwise optimizes unless the build mode is debug.
func ResolveOptimize(config *types.AssetsConfig, info *buildinfo.Info) bool {
	if config != nil && config.Optimize != nil {
		return *config.Optimize
	}
	return ResolveBuildMode(config, info) != buildinfo.ModeDebug
}
