package transcriber

import "strings"

// FailureKind distinguishes known CUDA failure families for user messaging.
// The distinction only shapes the remediation hint; at the interface boundary
// every load failure collapses into one error.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureOutOfMemory
	FailureMissingLibrary
	FailureDriverMismatch
)

// DefaultCUDAKeywords are the substrings that mark an error as a CUDA
// runtime failure eligible for CPU fallback. Error strings are not a stable
// contract, so the set is configurable; these defaults cover the failures
// seen in practice.
var DefaultCUDAKeywords = []string{
	"cuda",
	"cudnn",
	"cublas",
	"nvrtc",
	"gpu",
	"out of memory",
	"cudnn_ops64_9.dll",
	"cudart",
}

// IsCUDAFailure reports whether an error message matches any of the given
// CUDA failure signatures (case-insensitive substring match). A nil or empty
// keyword slice falls back to the defaults.
func IsCUDAFailure(message string, keywords []string) bool {
	if len(keywords) == 0 {
		keywords = DefaultCUDAKeywords
	}
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Classify buckets an error message into a failure kind.
func Classify(message string) FailureKind {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "out of memory"):
		return FailureOutOfMemory
	case strings.Contains(lower, "cudnn_ops64_9.dll"),
		strings.Contains(lower, "cannot locate"),
		strings.Contains(lower, "cannot find"),
		strings.Contains(lower, "no such file"),
		strings.Contains(lower, "error while loading shared libraries"):
		return FailureMissingLibrary
	case strings.Contains(lower, "driver version is insufficient"),
		strings.Contains(lower, "version mismatch"),
		strings.Contains(lower, "cudnn_status_not_initialized"):
		return FailureDriverMismatch
	default:
		return FailureUnknown
	}
}

// Hint returns the remediation guidance attached to failure messages.
func Hint(kind FailureKind) string {
	switch kind {
	case FailureOutOfMemory:
		return "GPU ran out of memory: try a smaller model (tiny, base, small) or run with --device cpu"
	case FailureMissingLibrary:
		return "a CUDA/cuDNN library is missing: download cuDNN from https://developer.nvidia.com/cudnn and copy its libraries into the CUDA bin directory, or run with --device cpu"
	case FailureDriverMismatch:
		return "CUDA driver/toolkit mismatch: update the NVIDIA driver from https://www.nvidia.com/Download/index.aspx, or run with --device cpu"
	default:
		return ""
	}
}
