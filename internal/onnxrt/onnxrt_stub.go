//go:build !cgo

package onnxrt

const Available = false

func Init(libPath string) error { return ErrUnsupported }

func Shutdown() {}
