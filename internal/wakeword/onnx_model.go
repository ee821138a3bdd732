//go:build cgo

package wakeword

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/neboloop/hotword/internal/onnxrt"
)

type onnxModel struct {
	session *ort.DynamicAdvancedSession
}

// ONNXLoader returns a loader for models taking a [1, window] float input
// and producing a [1, 1] score.
func ONNXLoader(runtimeLib, inputName, outputName string) ModelLoader {
	return func(path string) (Model, error) {
		if err := onnxrt.Init(runtimeLib); err != nil {
			return nil, err
		}
		s, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		return &onnxModel{session: s}, nil
	}
}

func (m *onnxModel) Predict(window []float32) (float64, error) {
	in, err := ort.NewTensor(ort.NewShape(1, int64(len(window))), window)
	if err != nil {
		return 0, err
	}
	defer in.Destroy()

	out, err := ort.NewTensor(ort.NewShape(1, 1), make([]float32, 1))
	if err != nil {
		return 0, err
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, err
	}
	return float64(out.GetData()[0]), nil
}

func (m *onnxModel) Close() error {
	return m.session.Destroy()
}
