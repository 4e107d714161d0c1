package device

import (
	"context"
	"errors"
	"os"
	"testing"
)

func newTestResolver(
	smiPresent bool,
	smiErr error,
	presentLibs map[string]bool,
) *Resolver {
	lookPath := func(name string) (string, error) {
		if smiPresent {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	runCommand := func(ctx context.Context, name string, args ...string) error {
		return smiErr
	}
	stat := func(path string) (os.FileInfo, error) {
		if presentLibs[path] {
			return nil, nil
		}
		return nil, os.ErrNotExist
	}
	getenv := func(key string) string {
		if key == "CUDA_PATH" {
			return "/opt/cuda"
		}
		return ""
	}
	executable := func() (string, error) { return "/usr/local/bin/batchscribe", nil }

	return NewResolverForTests(lookPath, runCommand, stat, getenv, executable, "linux")
}

func allLibsPresent() map[string]bool {
	libs := map[string]bool{}
	for _, lib := range requiredLibraries["linux"] {
		libs["/opt/cuda/lib64/"+lib] = true
	}
	return libs
}

func TestResolveCPUPreference(t *testing.T) {
	r := newTestResolver(true, nil, allLibsPresent())
	if got := r.Resolve(PreferCPU); got != CPU {
		t.Fatalf("Resolve(cpu) = %v, want CPU", got)
	}
}

func TestResolveAutoWithWorkingCUDA(t *testing.T) {
	r := newTestResolver(true, nil, allLibsPresent())
	if got := r.Resolve(PreferAuto); got != CUDA {
		t.Fatalf("Resolve(auto) = %v, want CUDA", got)
	}
}

func TestResolveAutoWithoutDriver(t *testing.T) {
	r := newTestResolver(false, nil, nil)
	if got := r.Resolve(PreferAuto); got != CPU {
		t.Fatalf("Resolve(auto) = %v, want CPU", got)
	}
}

func TestResolveCUDARequestedButDriverUnresponsive(t *testing.T) {
	r := newTestResolver(true, errors.New("NVML: driver/library version mismatch"), nil)
	if got := r.Resolve(PreferCUDA); got != CPU {
		t.Fatalf("Resolve(cuda) with dead driver = %v, want CPU", got)
	}
}

func TestResolveAutoMissingLibrariesFallsBack(t *testing.T) {
	r := newTestResolver(true, nil, nil)
	if got := r.Resolve(PreferAuto); got != CPU {
		t.Fatalf("Resolve(auto) with missing libs = %v, want CPU", got)
	}
}

func TestResolveExplicitCUDAHonoredDespiteMissingLibraries(t *testing.T) {
	r := newTestResolver(true, nil, nil)
	if got := r.Resolve(PreferCUDA); got != CUDA {
		t.Fatalf("Resolve(cuda) with missing libs = %v, want CUDA", got)
	}
}

func TestParsePreference(t *testing.T) {
	cases := []struct {
		in      string
		want    Preference
		wantErr bool
	}{
		{"auto", PreferAuto, false},
		{"", PreferAuto, false},
		{"CUDA", PreferCUDA, false},
		{"gpu", PreferCUDA, false},
		{"cpu", PreferCPU, false},
		{"tpu", "", true},
	}
	for _, tc := range cases {
		got, err := ParsePreference(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParsePreference(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePreference(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePreference(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
