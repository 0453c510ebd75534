package onnx

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/krau/objclassify/config"
	"github.com/krau/objclassify/logger"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

const LibEnv = "ONNXRUNTIME_LIB"

var (
	pathOnce sync.Once
	libPath  string
)

// LibPath returns the ONNX Runtime shared library to load, or "" when none
// was found.
func LibPath() string {
	pathOnce.Do(func() {
		libPath = resolveLibPath(config.C().Libonnx, os.Getenv(LibEnv), runtime.GOOS, fileExists)
		if libPath == "" {
			logger.L().Error("ONNX Runtime library path could not be determined for this OS")
		} else {
			logger.L().Info("Using ONNX Runtime library", zap.String("path", libPath))
		}
	})
	return libPath
}

func resolveLibPath(configured, env, goos string, exists func(string) bool) string {
	if configured != "" {
		return configured
	}
	if env != "" {
		return env
	}
	var candidates []string
	switch goos {
	case "linux":
		candidates = []string{
			"onnxlibs/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/opt/onnxruntime/lib/libonnxruntime.so",
		}
	case "darwin":
		candidates = []string{
			"onnxlibs/libonnxruntime.dylib",
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
	case "windows":
		candidates = []string{"onnxlibs/onnxruntime.dll", "onnxruntime.dll"}
	}
	for _, p := range candidates {
		if exists(p) {
			return p
		}
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Init points onnxruntime_go at LibPath and initializes the environment.
// Calling it again after success is a no-op.
func Init() error {
	if ort.IsInitialized() {
		return nil
	}
	path := LibPath()
	if path == "" {
		return errors.New("onnx runtime library not found")
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	return nil
}

func Destroy() {
	if !ort.IsInitialized() {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		logger.L().Warn("failed to destroy ONNX Runtime environment", zap.Error(err))
	}
}
