package device

import (
	"fmt"
	"strings"
)

// Choice is the execution device a batch actually runs on.
type Choice string

const (
	CUDA Choice = "cuda"
	CPU  Choice = "cpu"
)

// Preference is the user-requested device, before probing.
type Preference string

const (
	PreferAuto Preference = "auto"
	PreferCUDA Preference = "cuda"
	PreferCPU  Preference = "cpu"
)

// ParsePreference validates a --device flag value.
func ParsePreference(s string) (Preference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PreferAuto, nil
	case "cuda", "gpu":
		return PreferCUDA, nil
	case "cpu":
		return PreferCPU, nil
	default:
		return "", fmt.Errorf("unknown device %q (supported: auto, cuda, cpu)", s)
	}
}
