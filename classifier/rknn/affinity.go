package rknn

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// CoreType selects a cluster of CPU cores on big.LITTLE Rockchip SoCs
type CoreType int

const (
	FastCores CoreType = iota
	SlowCores
	AllCores
)

// socCores lists the CPU numbers of the fast and slow clusters of each SoC,
// SoCs with a single cluster list the same cores for both
var socCores = map[string]struct{ fast, slow []int }{
	"rk3562": {fast: []int{0, 1, 2, 3}, slow: []int{0, 1, 2, 3}},
	"rk3566": {fast: []int{0, 1, 2, 3}, slow: []int{0, 1, 2, 3}},
	"rk3568": {fast: []int{0, 1, 2, 3}, slow: []int{0, 1, 2, 3}},
	"rk3576": {fast: []int{4, 5, 6, 7}, slow: []int{0, 1, 2, 3}},
	"rk3582": {fast: []int{4, 5}, slow: []int{0, 1, 2, 3}},
	"rk3588": {fast: []int{4, 5, 6, 7}, slow: []int{0, 1, 2, 3}},
}

// Platforms returns the SoC names known to PinCPU
func Platforms() []string {
	names := make([]string, 0, len(socCores))
	for name := range socCores {
		names = append(names, name)
	}
	return names
}

// CoresFor returns the CPU numbers of the requested cluster on the SoC
func CoresFor(platform string, ct CoreType) ([]int, error) {

	soc, ok := socCores[strings.ToLower(strings.TrimSpace(platform))]

	if !ok {
		return nil, fmt.Errorf("unknown platform: %s", platform)
	}

	switch ct {
	case FastCores:
		return soc.fast, nil
	case SlowCores:
		return soc.slow, nil
	case AllCores:
		seen := make(map[int]bool)
		var all []int

		for _, c := range append(append([]int{}, soc.slow...), soc.fast...) {
			if !seen[c] {
				seen[c] = true
				all = append(all, c)
			}
		}

		return all, nil
	default:
		return nil, fmt.Errorf("unknown core type %d", ct)
	}
}

// PinCPU restricts the process to the given cluster so pre and post
// processing between NPU runs is scheduled on the fast cores
func PinCPU(platform string, ct CoreType) error {

	cores, err := CoresFor(platform, ct)

	if err != nil {
		return err
	}

	var set unix.CPUSet
	set.Zero()

	for _, c := range cores {
		set.Set(c)
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}
