package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// GPUConfig holds CUDA execution provider settings.
type GPUConfig struct {
	UseGPU              bool   `mapstructure:"use_gpu" yaml:"use_gpu" json:"use_gpu"`
	DeviceID            int    `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	MemLimit            uint64 `mapstructure:"mem_limit" yaml:"mem_limit" json:"mem_limit"` // bytes, 0 = unlimited
	ArenaExtendStrategy string `mapstructure:"arena_extend_strategy" yaml:"arena_extend_strategy" json:"arena_extend_strategy"`
}

// DefaultGPUConfig returns a CPU-only configuration.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{ArenaExtendStrategy: "kNextPowerOfTwo"}
}

// Validate checks the GPU settings; CPU-only configs always pass.
func (c GPUConfig) Validate() error {
	if !c.UseGPU {
		return nil
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", c.DeviceID)
	}
	switch c.ArenaExtendStrategy {
	case "", "kNextPowerOfTwo", "kSameAsRequested":
		return nil
	}
	return fmt.Errorf("invalid arena extend strategy %q", c.ArenaExtendStrategy)
}

func (c GPUConfig) configure(opts *ort.SessionOptions) error {
	if !c.UseGPU {
		return nil
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("create CUDA provider options: %w", err)
	}
	defer func() {
		if err := cuda.Destroy(); err != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", err)
		}
	}()

	settings := map[string]string{"device_id": strconv.Itoa(c.DeviceID)}
	if c.MemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(c.MemLimit, 10)
	}
	if c.ArenaExtendStrategy != "" {
		settings["arena_extend_strategy"] = c.ArenaExtendStrategy
	}
	if err := cuda.Update(settings); err != nil {
		return fmt.Errorf("update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("append CUDA execution provider: %w", err)
	}
	return nil
}

var initMu sync.Mutex

// InitRuntime locates the shared library and initializes the ONNX Runtime
// environment once per process. libPath overrides discovery when set.
func InitRuntime(libPath string, useGPU bool) error {
	initMu.Lock()
	defer initMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		var err error
		if libPath, err = findLibrary(useGPU); err != nil {
			return err
		}
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize ONNX Runtime from %s: %w", libPath, err)
	}
	slog.Debug("ONNX Runtime initialized", "library", libPath)
	return nil
}

func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	}
	return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
}

// findLibrary searches $ONNXRUNTIME_LIB, the system library directories and
// an onnxruntime/ directory next to the project root.
func findLibrary(useGPU bool) (string, error) {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p, nil
	}
	name, err := libraryName()
	if err != nil {
		return "", err
	}
	var candidates []string
	if useGPU {
		candidates = append(candidates, filepath.Join("/opt/onnxruntime/gpu/lib", name))
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/usr/lib", name),
		filepath.Join("/opt/onnxruntime/cpu/lib", name),
	)
	if root, err := projectRoot(); err == nil {
		if useGPU {
			candidates = append(candidates, filepath.Join(root, "onnxruntime", "gpu", "lib", name))
		}
		candidates = append(candidates, filepath.Join(root, "onnxruntime", "lib", name))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("ONNX Runtime library %s not found (set ONNXRUNTIME_LIB)", name)
}

func projectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
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
