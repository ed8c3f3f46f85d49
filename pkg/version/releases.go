package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/samber/lo"
)

var prereleaseMarkers = []string{"alpha", "beta", "rc", "pre", "dev", "snapshot"}

// IsPrerelease checks if a version is a pre-release
func IsPrerelease(v string) bool {
	sv, err := semver.NewVersion(Normalize(v))
	if err != nil {
		lower := strings.ToLower(v)
		return lo.SomeBy(prereleaseMarkers, func(marker string) bool {
			return strings.Contains(lower, marker)
		})
	}
	return sv.Prerelease() != ""
}

// Latest picks the newest release of a channel from a release listing.
// Stable never offers pre-releases. Releases whose versions cannot be ordered
// are only considered when nothing orderable is listed, newest release date first.
func Latest(releases []types.UpdateInfo, ch types.Channel) (*types.UpdateInfo, error) {
	candidates := lo.Filter(releases, func(r types.UpdateInfo, _ int) bool {
		channel := r.Channel
		if channel == "" {
			channel = types.ChannelStable
		}
		if channel != ch || r.Version == "" {
			return false
		}
		return ch != types.ChannelStable || !IsPrerelease(r.Version)
	})
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no %s releases available", ch)
	}

	ordered := lo.Filter(candidates, func(r types.UpdateInfo, _ int) bool {
		return IsComparable(r.Version)
	})
	if len(ordered) > 0 {
		sort.SliceStable(ordered, func(i, j int) bool {
			c, _ := Compare(ordered[i].Version, ordered[j].Version)
			return c > 0
		})
		return &ordered[0], nil
	}

	other := candidates

	sort.SliceStable(other, func(i, j int) bool {
		return other[i].ReleaseDate.After(other[j].ReleaseDate)
	})
	return &other[0], nil
}
