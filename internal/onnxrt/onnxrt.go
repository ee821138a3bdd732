//go:build cgo

// Package onnxrt owns the process-wide onnxruntime environment shared by
// the speech classifier and the keyword models.
package onnxrt

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// Available reports whether this build can run ONNX models.
const Available = true

// Init loads the shared library once. libPath may be empty to use the
// platform default.
func Init(libPath string) error {
	initOnce.Do(func() {
		if libPath == "" {
			libPath = defaultLibPath()
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil && !ort.IsInitialized() {
			initErr = fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	})
	return initErr
}

// Shutdown releases the environment.
func Shutdown() {
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// defaultLibPath returns the platform-specific path to the ONNX Runtime shared library.
func defaultLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin":
		return "/opt/homebrew/lib/libonnxruntime.dylib"
	case "linux":
		return "/usr/lib/libonnxruntime.so"
	case "windows":
		return "onnxruntime.dll"
	}
	return ""
}
