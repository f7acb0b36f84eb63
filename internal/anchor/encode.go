package anchor

import "github.com/banshee-data/arthylene/internal/geom"

// Encode returns object expressed relative to device: inverse(device)*object.
func Encode(device, object geom.Transform) geom.Transform {
	return device.InverseRigid().Mul(object)
}

// Apply is the inverse of Encode: device*rel.
func Apply(device, rel geom.Transform) geom.Transform {
	return device.Mul(rel)
}
