package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/RogerMarsh/solentware-base-sub003/filespec"
	"github.com/RogerMarsh/solentware-base-sub003/internal/resource"
)

// writeBundle streams the file's artifact set into its bundle, temp then
// rename, and returns the CRC-32C of the bundle bytes plus the member list.
func (m *Manager) writeBundle(ctx context.Context, file string, layout filespec.Layout, bundle string) (uint32, []Member, error) {
	tmp := filepath.Join(m.dir, bundle+".tmp")
	f, err := m.fsys.Create(tmp)
	if err != nil {
		return 0, nil, ioErr("archive", file, bundle, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = m.fsys.Remove(tmp)
		}
	}()

	// The hash sees exactly the compressed bytes that land in the file.
	h := crc32.New(castagnoli)
	w := io.MultiWriter(resource.NewRateLimitedWriter(ctx, f, m.rc), h)

	var members []Member
	if layout == filespec.LayoutCombined {
		members, err = m.packLz4(w, file)
	} else {
		members, err = m.packTarZst(w, file)
	}
	if err != nil {
		return 0, nil, ioErr("archive", file, bundle, err)
	}

	if err := f.Sync(); err != nil {
		return 0, nil, ioErr("archive", file, bundle, err)
	}
	if err := f.Close(); err != nil {
		return 0, nil, ioErr("archive", file, bundle, err)
	}
	if err := m.fsys.Rename(tmp, filepath.Join(m.dir, bundle)); err != nil {
		return 0, nil, ioErr("archive", file, bundle, err)
	}
	committed = true

	return h.Sum32(), members, nil
}

// packTarZst writes every artifact of a per-field file into one tar
// container inside a zstd stream.
func (m *Manager) packTarZst(w io.Writer, file string) ([]Member, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(zw)

	names := m.ArchiveSet(file)
	members := make([]Member, 0, len(names))
	for _, name := range names {
		size, err := m.packMember(tw, name)
		if err != nil {
			_ = tw.Close()
			_ = zw.Close()
			return nil, err
		}
		members = append(members, Member{Name: name, Size: size})
	}

	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return nil, err
	}
	return members, zw.Close()
}

func (m *Manager) packMember(tw *tar.Writer, name string) (int64, error) {
	src, err := m.fsys.Open(filepath.Join(m.dir, name))
	if err != nil {
		return 0, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, err
	}

	hdr := &tar.Header{
		Name:    name,
		Mode:    0o600,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, err
	}
	if _, err := io.Copy(tw, src); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// packLz4 compresses the single artifact of a combined-layout file into an
// lz4 frame.
func (m *Manager) packLz4(w io.Writer, file string) ([]Member, error) {
	names := m.ArchiveSet(file)
	if len(names) != 1 {
		return nil, fmt.Errorf("combined layout wants one artifact, spec lists %d", len(names))
	}
	name := names[0]

	src, err := m.fsys.Open(filepath.Join(m.dir, name))
	if err != nil {
		return nil, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, err
	}

	zw := lz4.NewWriter(w)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return []Member{{Name: name, Size: info.Size()}}, nil
}

// unpackTarZst restores every member of a per-field bundle over the live
// artifacts, one temp and rename per member.
func (m *Manager) unpackTarZst(ctx context.Context, file, bundlePath string, g Guard) error {
	src, err := m.fsys.Open(bundlePath)
	if err != nil {
		return ioErr("restore", file, g.Bundle, err)
	}
	defer src.Close()

	zr, err := zstd.NewReader(src)
	if err != nil {
		return ioErr("restore", file, g.Bundle, err)
	}
	defer zr.Close()

	allowed := make(map[string]struct{}, len(g.Members))
	for _, mem := range g.Members {
		allowed[mem.Name] = struct{}{}
	}

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ioErr("restore", file, g.Bundle, err)
		}
		if err := checkMemberName(hdr.Name, allowed); err != nil {
			return ioErr("restore", file, hdr.Name, err)
		}
		if err := m.writeArtifact(ctx, hdr.Name, tr); err != nil {
			return ioErr("restore", file, hdr.Name, err)
		}
	}
	return nil
}

// unpackLz4 restores the single artifact of a combined-layout bundle.
func (m *Manager) unpackLz4(ctx context.Context, file, bundlePath string, g Guard) error {
	if len(g.Members) != 1 {
		return ioErr("restore", file, g.Bundle, fmt.Errorf("combined guard lists %d members, want 1", len(g.Members)))
	}
	name := g.Members[0].Name
	if err := checkMemberName(name, nil); err != nil {
		return ioErr("restore", file, name, err)
	}

	src, err := m.fsys.Open(bundlePath)
	if err != nil {
		return ioErr("restore", file, g.Bundle, err)
	}
	defer src.Close()

	if err := m.writeArtifact(ctx, name, lz4.NewReader(src)); err != nil {
		return ioErr("restore", file, name, err)
	}
	return nil
}

// checkMemberName rejects names that would escape the database directory
// and, when an allow set is given, names the guard does not list.
func checkMemberName(name string, allowed map[string]struct{}) error {
	if !filepath.IsLocal(name) {
		return fmt.Errorf("member name %q escapes the database directory", name)
	}
	if allowed != nil {
		if _, ok := allowed[name]; !ok {
			return errors.New("bundle member not named by guard")
		}
	}
	return nil
}
