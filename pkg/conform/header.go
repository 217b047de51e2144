package conform

import (
	"volconform/pkg/geometry"
	"volconform/pkg/naming"
	"volconform/pkg/volume"
)

// CopyHeader writes a copy of the image at dataPath whose geometry — affine
// and spatial unit — is taken from the image at hdrPath. The voxel data and
// shape come from dataPath; only the world placement is replaced. This
// repairs images whose header was mangled by a tool that preserved the data
// faithfully. The output path is derived from dataPath plus the suffix.
func CopyHeader(store Store, dataPath, hdrPath, suffix string) (string, error) {
	src, err := store.Load(dataPath)
	if err != nil {
		return "", err
	}
	ref, err := store.Load(hdrPath)
	if err != nil {
		return "", err
	}

	out := &volume.Image{
		Data:   src.Data,
		Shape:  src.Shape,
		Affine: geometry.CloneAffine(ref.Affine),
		Unit:   ref.Unit,
	}
	return store.Save(out, naming.Derive(dataPath, suffix))
}
