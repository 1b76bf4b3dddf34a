package layer

import "github.com/javanhut/gcc-ocf/internal/gccerr"

func errIDOutOfRange(layerName string) error {
	return gccerr.Newf(gccerr.CorruptPayload, "%s: id out of range", layerName)
}
