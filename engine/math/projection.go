package math

import "github.com/chewxy/math32"

// NewMat4Perspective returns a right-handed perspective projection for row vectors.
func NewMat4Perspective(fov_radians, aspect_ratio, near_clip, far_clip float32) Mat4 {
	halfTanFov := math32.Tan(fov_radians * 0.5)
	out := Mat4{}
	out.Data[0] = 1.0 / (aspect_ratio * halfTanFov)
	out.Data[5] = 1.0 / halfTanFov
	out.Data[10] = -((far_clip + near_clip) / (far_clip - near_clip))
	out.Data[11] = -1.0
	out.Data[14] = -((2.0 * far_clip * near_clip) / (far_clip - near_clip))
	return out
}

// NewMat4LookAt returns a view matrix looking at target from position.
func NewMat4LookAt(position, target, up Vec3) Mat4 {
	z := target.Sub(position).Normalized()
	x := up.Cross(z).Normalized()
	y := z.Cross(x)

	out := Mat4{}
	out.Data[0] = x.X
	out.Data[1] = y.X
	out.Data[2] = -z.X
	out.Data[4] = x.Y
	out.Data[5] = y.Y
	out.Data[6] = -z.Y
	out.Data[8] = x.Z
	out.Data[9] = y.Z
	out.Data[10] = -z.Z
	out.Data[12] = -x.Dot(position)
	out.Data[13] = -y.Dot(position)
	out.Data[14] = z.Dot(position)
	out.Data[15] = 1.0
	return out
}
