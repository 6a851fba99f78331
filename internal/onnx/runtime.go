package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// EnvLibraryPath overrides the ONNX Runtime shared library location.
const EnvLibraryPath = "ORYZA_ONNXRUNTIME_LIB"

var initMu sync.Mutex

// LibraryName returns the ONNX Runtime shared library filename for the current OS.
func LibraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// LibraryCandidates lists the paths searched for the shared library, in order.
func LibraryCandidates(useGPU bool) []string {
	var paths []string
	if env := os.Getenv(EnvLibraryPath); env != "" {
		paths = append(paths, env)
	}

	libName, err := LibraryName()
	if err != nil {
		return paths
	}

	if useGPU {
		paths = append(paths, filepath.Join("/opt/onnxruntime/gpu/lib", libName))
	}
	paths = append(paths,
		filepath.Join("/usr/local/lib", libName),
		filepath.Join("/usr/lib", libName),
		filepath.Join("/opt/onnxruntime/cpu/lib", libName),
	)

	if root, err := findProjectRoot(); err == nil {
		if useGPU {
			paths = append(paths, filepath.Join(root, "onnxruntime", "gpu", "lib", libName))
		}
		paths = append(paths, filepath.Join(root, "onnxruntime", "lib", libName))
	}
	return paths
}

// ResolveLibraryPath returns the first existing shared library candidate.
func ResolveLibraryPath(useGPU bool) (string, error) {
	candidates := LibraryCandidates(useGPU)
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("ONNX Runtime library not found (searched %v)", candidates)
}

// Initialize points onnxruntime_go at the shared library and initializes the
// environment once per process. Later calls are no-ops.
func Initialize(useGPU bool) error {
	initMu.Lock()
	defer initMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	libPath, err := ResolveLibraryPath(useGPU)
	if err != nil {
		return err
	}
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	slog.Debug("ONNX Runtime initialized", "library", libPath, "gpu", useGPU)
	return nil
}

// Shutdown destroys the ONNX Runtime environment if it was initialized.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// SessionOptions configures session creation.
type SessionOptions struct {
	NumThreads int
	GPU        GPUConfig
}

// NewSessionOptions builds onnxruntime session options. The caller must Destroy them.
func NewSessionOptions(cfg SessionOptions) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if err := ConfigureSessionForGPU(opts, cfg.GPU); err != nil {
		_ = opts.Destroy()
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			_ = opts.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}
	return opts, nil
}

// CheckRuntime verifies that the shared library can be located and loaded.
// It returns the library path that was used.
func CheckRuntime(useGPU bool) (string, error) {
	libPath, err := ResolveLibraryPath(useGPU)
	if err != nil {
		return "", err
	}
	if err := Initialize(useGPU); err != nil {
		return libPath, err
	}
	return libPath, nil
}

// findProjectRoot walks up from the working directory to the nearest go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}
