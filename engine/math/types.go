package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief a 4x4 row-major matrix using the row-vector convention:
 * a point p is transformed as p * M and A.Mul(B) applies A first, then B.
 * Translation lives in Data[12..14].
 */
type Mat4 struct {
	Data [16]float32
}

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	Min Vec3
	Max Vec3
}

/**
 * @brief Represents the transform of an object in the world.
 * Transforms can have a parent whose own transform is then
 * taken into account. The properties should be changed through
 * the setters so the local matrix is regenerated.
 */
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
	/** @brief Set when position, rotation or scale changed since the last GetLocal. */
	IsDirty bool
	Local   Mat4
	/** @brief Optional parent transform. */
	Parent *Transform
}
