package runnotify

import (
	"os"
	"strconv"
	"strings"
)

// RankEnvVar is set by distributed launchers (torchrun and friends) to the
// process rank. Only rank 0 sends start and success notifications.
const RankEnvVar = "RANK"

// EnvLookup reads an environment variable, reporting whether it is set.
type EnvLookup func(key string) (string, bool)

// Hostname returns the machine name.
type Hostname func() (string, error)

// rankInfo is the outcome of inspecting the process rank.
type rankInfo struct {
	value  string
	set    bool
	master bool
}

func rankFromValue(raw string) rankInfo {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	return rankInfo{value: raw, set: true, master: err == nil && n == 0}
}

func lookupRank(lookup EnvLookup) rankInfo {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw, ok := lookup(RankEnvVar)
	if !ok {
		return rankInfo{master: true}
	}
	return rankFromValue(raw)
}

// hostIdentifier returns the host name, with the rank appended when one is set.
func hostIdentifier(hostname Hostname, rank rankInfo) string {
	host := "unknown"
	if hostname != nil {
		if h, err := hostname(); err == nil && h != "" {
			host = h
		}
	}
	if rank.set {
		host += " - RANK: " + rank.value
	}
	return host
}
