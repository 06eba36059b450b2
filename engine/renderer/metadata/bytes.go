package metadata

import (
	"encoding/binary"
	gomath "math"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

// Little endian packing helpers for device visible memory.

func PutFloat32(dst []byte, f float32) {
	binary.LittleEndian.PutUint32(dst, gomath.Float32bits(f))
}

func GetFloat32(src []byte) float32 {
	return gomath.Float32frombits(binary.LittleEndian.Uint32(src))
}

func PutVec4(dst []byte, v math.Vec4) {
	PutFloat32(dst[0:], v.X)
	PutFloat32(dst[4:], v.Y)
	PutFloat32(dst[8:], v.Z)
	PutFloat32(dst[12:], v.W)
}

func GetVec4(src []byte) math.Vec4 {
	return math.NewVec4(GetFloat32(src[0:]), GetFloat32(src[4:]), GetFloat32(src[8:]), GetFloat32(src[12:]))
}

// PutMat4 writes the 16 floats in storage order.
func PutMat4(dst []byte, m math.Mat4) {
	for i, f := range m.Data {
		PutFloat32(dst[i*4:], f)
	}
}

func GetMat4(src []byte) math.Mat4 {
	var m math.Mat4
	for i := range m.Data {
		m.Data[i] = GetFloat32(src[i*4:])
	}
	return m
}

func Vec3sToBytes(vs []math.Vec3) []byte {
	out := make([]byte, len(vs)*12)
	for i, v := range vs {
		PutFloat32(out[i*12:], v.X)
		PutFloat32(out[i*12+4:], v.Y)
		PutFloat32(out[i*12+8:], v.Z)
	}
	return out
}

func Vec2sToBytes(vs []math.Vec2) []byte {
	out := make([]byte, len(vs)*8)
	for i, v := range vs {
		PutFloat32(out[i*8:], v.X)
		PutFloat32(out[i*8+4:], v.Y)
	}
	return out
}

func Uint32sToBytes(vs []uint32) []byte {
	out := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}
