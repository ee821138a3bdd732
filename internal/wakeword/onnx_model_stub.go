//go:build !cgo

package wakeword

import "github.com/neboloop/hotword/internal/onnxrt"

// ONNXLoader fails without cgo.
func ONNXLoader(runtimeLib, inputName, outputName string) ModelLoader {
	return func(string) (Model, error) {
		return nil, onnxrt.ErrUnsupported
	}
}
