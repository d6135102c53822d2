package archive

import (
	"hash/crc32"
	"time"

	"github.com/RogerMarsh/solentware-base-sub003/filespec"
)

// guardFormat is the guard file schema version.
const guardFormat = 1

// castagnoli is the CRC-32C polynomial table. Same checksum family S3 uses
// for object integrity, so the guard value doubles as the catalog CRC.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Guard is the metadata artifact that makes a bundle valid. Restore refuses
// to touch live artifacts without one, and an interrupted archive never
// leaves a guard pointing at a partial bundle: the bundle is renamed into
// place before the guard is written.
type Guard struct {
	Format    int       `json:"format"`
	CreatedAt time.Time `json:"created_at"`
	Bundle    string    `json:"bundle"`
	CRC32C    uint32    `json:"crc32c"`
	Members   []Member  `json:"members"`
}

// Member records one bundled artifact and its uncompressed size.
type Member struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// BundleName returns the bundle artifact name for a file: a tar.zst of the
// whole artifact set for per-field layouts, an lz4 frame of the single
// artifact for combined layouts.
func BundleName(file string, layout filespec.Layout) string {
	if layout == filespec.LayoutCombined {
		return file + ".lz4"
	}
	return file + ".tar.zst"
}

// GuardName returns the guard artifact name for a file.
func GuardName(file string) string {
	return file + ".grd"
}
