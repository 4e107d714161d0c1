package device

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// requiredLibraries are the shared CUDA/cuDNN libraries whisper needs at
// inference time. Missing libraries are the most common cause of GPU runs
// failing after the driver itself probes fine.
var requiredLibraries = map[string][]string{
	"windows": {"cudart64_12.dll", "cublas64_12.dll", "cudnn_ops64_9.dll"},
	"linux":   {"libcudart.so.12", "libcublas.so.12", "libcudnn.so.9"},
}

// Resolver decides the execution device from a user preference plus runtime
// probing. All OS access goes through injectable hooks so resolution is
// testable without a GPU.
type Resolver struct {
	lookPath   func(string) (string, error)
	runCommand func(ctx context.Context, name string, args ...string) error
	stat       func(string) (os.FileInfo, error)
	getenv     func(string) string
	executable func() (string, error)
	goos       string
}

// NewResolver builds a resolver backed by the real environment.
func NewResolver() *Resolver {
	return &Resolver{
		lookPath: exec.LookPath,
		runCommand: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		stat:       os.Stat,
		getenv:     os.Getenv,
		executable: os.Executable,
		goos:       runtime.GOOS,
	}
}

// Resolve maps a preference to a usable device. It never fails: any probe
// error or ambiguity resolves to CPU, except an explicit CUDA request, which
// is honored even when support libraries look incomplete.
func (r *Resolver) Resolve(pref Preference) Choice {
	if pref == PreferCPU {
		log.Printf("device: CPU requested")
		return CPU
	}

	if !r.cudaAvailable() {
		if pref == PreferCUDA {
			log.Printf("device: CUDA requested but no working CUDA runtime was found, falling back to CPU")
			log.Printf("device: install the NVIDIA driver and CUDA toolkit: https://developer.nvidia.com/cuda-downloads")
		} else {
			log.Printf("device: no CUDA runtime detected, using CPU")
		}
		return CPU
	}

	missing := r.missingLibraries()
	if len(missing) == 0 {
		log.Printf("device: CUDA runtime and support libraries found, using CUDA")
		return CUDA
	}

	for _, lib := range missing {
		log.Printf("device: required library not found on any search path: %s", lib)
	}
	log.Printf("device: add the CUDA bin directory to your library path, or copy the missing libraries next to the binary")

	if pref == PreferCUDA {
		log.Printf("device: proceeding with CUDA as explicitly requested; inference may fail and fall back per file")
		return CUDA
	}

	log.Printf("device: falling back to CPU due to missing CUDA libraries")
	return CPU
}

// cudaAvailable probes for a responsive NVIDIA driver. nvidia-smi present
// and exiting zero is the same signal the driver stack itself uses.
func (r *Resolver) cudaAvailable() bool {
	smi, err := r.lookPath("nvidia-smi")
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.runCommand(ctx, smi, "-L"); err != nil {
		log.Printf("device: nvidia-smi found but not responding: %v", err)
		return false
	}
	return true
}

// missingLibraries returns required CUDA libraries that cannot be located on
// any well-known search location.
func (r *Resolver) missingLibraries() []string {
	libs := requiredLibraries[r.goos]
	if libs == nil {
		libs = requiredLibraries["linux"]
	}

	roots := r.searchRoots()
	var missing []string
	for _, lib := range libs {
		if !r.findLibrary(lib, roots) {
			missing = append(missing, lib)
		}
	}
	return missing
}

// searchRoots lists the directories probed for CUDA libraries: the
// environment-declared toolkit, the program-files toolkit tree, the working
// directory, and the directory holding this binary.
func (r *Resolver) searchRoots() []string {
	var roots []string

	if p := r.getenv("CUDA_PATH"); p != "" {
		roots = append(roots, p)
	}
	if pf := r.getenv("ProgramFiles"); pf != "" {
		roots = append(roots, filepath.Join(pf, "NVIDIA GPU Computing Toolkit", "CUDA"))
	}
	if wd, err := os.Getwd(); err == nil {
		roots = append(roots, wd)
	}
	if exe, err := r.executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}
	if r.goos != "windows" {
		roots = append(roots, "/usr/local/cuda")
	}
	return roots
}

func (r *Resolver) findLibrary(name string, roots []string) bool {
	for _, root := range roots {
		if root == "" {
			continue
		}
		for _, candidate := range []string{
			filepath.Join(root, name),
			filepath.Join(root, "bin", name),
			filepath.Join(root, "lib64", name),
		} {
			if _, err := r.stat(candidate); err == nil {
				return true
			}
		}
	}
	return false
}

// NewResolverForTests creates a resolver with injectable probes.
func NewResolverForTests(
	lookPath func(string) (string, error),
	runCommand func(ctx context.Context, name string, args ...string) error,
	stat func(string) (os.FileInfo, error),
	getenv func(string) string,
	executable func() (string, error),
	goos string,
) *Resolver {
	return &Resolver{
		lookPath:   lookPath,
		runCommand: runCommand,
		stat:       stat,
		getenv:     getenv,
		executable: executable,
		goos:       goos,
	}
}
