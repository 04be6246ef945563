// Package oracle serves next-price forecasts from an exported ONNX model.
package oracle

import (
	"context"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/etnz/tradeloop"
)

// DefaultModelPath is where the trained model is looked up when no path is
// configured.
const DefaultModelPath = "models/model.onnx"

var initOnce sync.Once

// initRuntime points the binding at the platform's shared library and
// initializes the environment once per process.
func initRuntime() error {
	var err error
	initOnce.Do(func() {
		libPath := "/usr/lib/libonnxruntime.so"
		switch runtime.GOOS {
		case "windows":
			libPath = "onnxruntime.dll"
		case "darwin":
			libPath = "libonnxruntime.dylib"
		}
		ort.SetSharedLibraryPath(libPath)
		err = ort.InitializeEnvironment()
	})
	return err
}

// Model runs single-row inference over the positional feature vector and
// returns the predicted next price. It implements tradeloop.Oracle.
//
// The session reuses one input and one output tensor, so Predict serializes
// concurrent callers.
type Model struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// Open loads the ONNX model at path. A missing file yields a
// KindOracleUnavailable error so the caller can degrade to the fallback
// forecast instead of failing.
func Open(path string) (*Model, error) {
	if path == "" {
		path = DefaultModelPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, tradeloop.WrapErr(tradeloop.KindOracleUnavailable, err, "no trained model at "+path)
	}
	if err := initRuntime(); err != nil {
		return nil, tradeloop.WrapErr(tradeloop.KindOracleUnavailable, err, "onnx runtime unavailable")
	}

	inputShape := ort.NewShape(1, tradeloop.FeatureCount)
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, tradeloop.FeatureCount))
	if err != nil {
		return nil, tradeloop.WrapErr(tradeloop.KindOracleUnavailable, err, "could not create input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		return nil, tradeloop.WrapErr(tradeloop.KindOracleUnavailable, err, "could not create output tensor")
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{"input"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, tradeloop.WrapErr(tradeloop.KindOracleUnavailable, err, "could not create inference session")
	}

	return &Model{session: session, input: inputTensor, output: outputTensor}, nil
}

// Predict runs the model over one feature vector.
func (m *Model) Predict(ctx context.Context, features tradeloop.FeatureVector) (float64, error) {
	if m == nil || m.session == nil {
		return 0, tradeloop.ErrOracleUnavailable
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.input.GetData()
	for i, v := range features {
		data[i] = float32(v)
	}
	if err := m.session.Run(); err != nil {
		return 0, tradeloop.WrapErr(tradeloop.KindOracleUnavailable, err, "inference failed")
	}
	return float64(m.output.GetData()[0]), nil
}

// Close releases the session and its tensors.
func (m *Model) Close() {
	if m == nil {
		return
	}
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}
