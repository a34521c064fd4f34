package flowgraph

import (
	"fmt"
	"unsafe"
)

// DataType is the scalar element type carried on a stream port.
type DataType int

// Supported scalar types. Untyped ports defer the itemsize check to the
// peer they are connected with.
const (
	Untyped DataType = iota
	Byte
	Int16
	Int32
	Float32
	Float64
	Complex64
	Complex128
)

// Size returns the size of one scalar in bytes. Untyped returns 0.
func (t DataType) Size() int {
	switch t {
	case Byte:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Float64, Complex64:
		return 8
	case Complex128:
		return 16
	}
	return 0
}

func (t DataType) String() string {
	switch t {
	case Untyped:
		return "untyped"
	case Byte:
		return "byte"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	}
	return fmt.Sprintf("datatype(%d)", int(t))
}

// Descriptor describes the items of a stream port: scalar type and shape.
// An empty shape is a single scalar per item.
type Descriptor struct {
	Type  DataType
	Shape []int
}

// Scalar returns a descriptor of a single scalar per item.
func Scalar(t DataType) Descriptor {
	return Descriptor{Type: t}
}

// Vector returns a descriptor of vlen scalars per item.
func Vector(t DataType, vlen int) Descriptor {
	return Descriptor{Type: t, Shape: []int{vlen}}
}

// ItemSize returns the item size in bytes: scalar size times the product of
// the shape. Untyped descriptors have zero item size.
func (d Descriptor) ItemSize() int {
	size := d.Type.Size()
	for _, n := range d.Shape {
		size *= n
	}
	return size
}

func (d Descriptor) String() string {
	if len(d.Shape) == 0 {
		return d.Type.String()
	}
	return fmt.Sprintf("%v%v", d.Type, d.Shape)
}

// Float32s views b as float32 values without copying.
func Float32s(b []byte) []float32 {
	return view[float32](b)
}

// Float64s views b as float64 values without copying.
func Float64s(b []byte) []float64 {
	return view[float64](b)
}

// Complex64s views b as complex64 values without copying.
func Complex64s(b []byte) []complex64 {
	return view[complex64](b)
}

// Complex128s views b as complex128 values without copying.
func Complex128s(b []byte) []complex128 {
	return view[complex128](b)
}

// Int16s views b as int16 values without copying.
func Int16s(b []byte) []int16 {
	return view[int16](b)
}

// Int32s views b as int32 values without copying.
func Int32s(b []byte) []int32 {
	return view[int32](b)
}

func view[T any](b []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(b) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/size)
}
