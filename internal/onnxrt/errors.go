package onnxrt

import "errors"

// ErrUnsupported is returned when the binary was built without cgo.
var ErrUnsupported = errors.New("onnxrt: built without cgo")
