package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RogerMarsh/solentware-base-sub003/filespec"
	"github.com/RogerMarsh/solentware-base-sub003/internal/fs"
	"github.com/RogerMarsh/solentware-base-sub003/internal/resource"
	"github.com/RogerMarsh/solentware-base-sub003/vault"
)

var errUnknownFile = errors.New("file not in specification")

// IOError reports an archive IO failure. Recoverability is indeterminate:
// callers must surface it and never treat the operation as succeeded.
type IOError struct {
	Op   string // archive, restore, delete, probe
	File string // database file the archive belongs to
	Path string // artifact involved, when known
	Err  error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive: %s %q: %s: %v", e.Op, e.File, e.Path, e.Err)
	}
	return fmt.Sprintf("archive: %s %q: %v", e.Op, e.File, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioErr(op, file, path string, err error) error {
	return &IOError{Op: op, File: file, Path: path, Err: err}
}

// Committer records successful archives in an external catalog.
// vault/s3.Catalog satisfies it.
type Committer interface {
	Commit(ctx context.Context, database, bundle, guard string, crc uint32) (uint64, error)
}

// Manager captures and restores the artifact sets of a database directory.
type Manager struct {
	spec    filespec.FileSpec
	dir     string
	fsys    fs.FileSystem
	vlt     vault.Vault
	catalog Committer
	rc      *resource.Controller
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithFS overrides the filesystem, letting tests inject faults.
func WithFS(fsys fs.FileSystem) Option {
	return func(m *Manager) {
		m.fsys = fsys
	}
}

// WithVault uploads each successful archive off-box and lets Restore fall
// back to downloading when the local bundle is gone.
func WithVault(v vault.Vault) Option {
	return func(m *Manager) {
		m.vlt = v
	}
}

// WithCatalog records every successful archive as a versioned commit row.
func WithCatalog(c Committer) Option {
	return func(m *Manager) {
		m.catalog = c
	}
}

// WithIOLimit throttles archive streaming to bytesPerSec. 0 is unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(m *Manager) {
		m.rc = resource.NewController(resource.Config{IOLimitBytesPerSec: bytesPerSec})
	}
}

// WithLogger enables progress logging.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a manager for the database directory dir. The
// specification decides each file's artifact set, bundle format and backup
// policy.
func NewManager(spec filespec.FileSpec, dir string, opts ...Option) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("archive: empty directory")
	}

	m := &Manager{
		spec: spec,
		dir:  dir,
		fsys: fs.Default,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Archive captures the file's artifacts as one unit: every artifact is
// streamed into a single bundle, then a guard artifact records the bundle's
// checksum and member sizes. Both are written to a temp name, synced and
// renamed into place, bundle first, so a crash between the two leaves no
// guard pointing at a partial bundle.
//
// Files whose Backup policy is unset are skipped. Call with no update in
// flight; member bytes must be stable while they stream.
func (m *Manager) Archive(ctx context.Context, file string) error {
	d, ok := m.spec[file]
	if !ok {
		return ioErr("archive", file, "", errUnknownFile)
	}
	if !d.Backup {
		return nil
	}

	start := time.Now()
	bundle := BundleName(file, d.Layout)

	crc, members, err := m.writeBundle(ctx, file, d.Layout, bundle)
	if err != nil {
		return err
	}

	g := Guard{
		Format:    guardFormat,
		CreatedAt: time.Now().UTC(),
		Bundle:    bundle,
		CRC32C:    crc,
		Members:   members,
	}
	if err := m.writeGuard(ctx, file, g); err != nil {
		return err
	}

	if m.vlt != nil {
		if err := m.upload(ctx, file, bundle); err != nil {
			return err
		}
		if err := m.upload(ctx, file, GuardName(file)); err != nil {
			return err
		}
	}
	if m.catalog != nil {
		if _, err := m.catalog.Commit(ctx, m.database(file), bundle, GuardName(file), crc); err != nil {
			return ioErr("archive", file, bundle, err)
		}
	}

	if m.logger != nil {
		m.logger.Info("archive complete",
			"file", file,
			"bundle", bundle,
			"members", len(members),
			"elapsed", time.Since(start),
		)
	}
	return nil
}

// DeleteArchive removes the file's bundle and guard, locally and from the
// vault. Idempotent: absent artifacts are not an error. The guard goes
// first, so an interrupted delete cannot leave a guard pointing at a
// missing bundle.
func (m *Manager) DeleteArchive(ctx context.Context, file string) error {
	d, ok := m.spec[file]
	if !ok {
		return ioErr("delete", file, "", errUnknownFile)
	}

	for _, name := range []string{GuardName(file), BundleName(file, d.Layout)} {
		err := m.fsys.Remove(filepath.Join(m.dir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return ioErr("delete", file, name, err)
		}
		if m.vlt != nil {
			if err := m.vlt.Delete(ctx, name); err != nil {
				return ioErr("delete", file, name, err)
			}
		}
	}
	return nil
}

// Archived reports whether the file has an archive, locally or in the vault.
func (m *Manager) Archived(ctx context.Context, file string) (bool, error) {
	if _, ok := m.spec[file]; !ok {
		return false, ioErr("probe", file, "", errUnknownFile)
	}
	guard := GuardName(file)

	_, err := m.fsys.Stat(filepath.Join(m.dir, guard))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, ioErr("probe", file, guard, err)
	}

	if m.vlt == nil {
		return false, nil
	}
	names, err := m.vlt.List(ctx, guard)
	if err != nil {
		return false, ioErr("probe", file, guard, err)
	}
	return slices.Contains(names, guard), nil
}

// Restore puts the file's artifacts back to their archived state: verify
// the guard's CRC against the bundle, unpack each member over the live
// artifact via temp and rename, then re-verify the restored sizes. The
// bundle is fetched from the vault when the local copy is gone. A CRC
// mismatch or missing bundle fails before any live artifact is touched.
func (m *Manager) Restore(ctx context.Context, file string) error {
	d, ok := m.spec[file]
	if !ok {
		return ioErr("restore", file, "", errUnknownFile)
	}

	start := time.Now()

	g, err := m.readGuard(ctx, file)
	if err != nil {
		return err
	}

	if err := m.ensureLocalBundle(ctx, file, g.Bundle); err != nil {
		return err
	}
	if err := m.verifyBundle(ctx, file, g); err != nil {
		return err
	}

	bundlePath := filepath.Join(m.dir, g.Bundle)
	if d.Layout == filespec.LayoutCombined {
		err = m.unpackLz4(ctx, file, bundlePath, g)
	} else {
		err = m.unpackTarZst(ctx, file, bundlePath, g)
	}
	if err != nil {
		return err
	}

	if err := m.verifyMembers(ctx, file, g); err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Info("restore complete",
			"file", file,
			"bundle", g.Bundle,
			"members", len(g.Members),
			"elapsed", time.Since(start),
		)
	}
	return nil
}

// ArchiveSet lists the live artifacts Archive captures for file: the field
// and role artifacts of a per-field layout, the single combined artifact
// otherwise. Unknown files return nil.
func (m *Manager) ArchiveSet(file string) []string {
	return m.spec.ArtifactNames(file)
}

// database is the catalog partition key for a file's archives.
func (m *Manager) database(file string) string {
	return filepath.ToSlash(filepath.Join(m.dir, file))
}

func (m *Manager) readGuard(ctx context.Context, file string) (Guard, error) {
	name := GuardName(file)

	data, err := m.readLocal(name)
	if errors.Is(err, os.ErrNotExist) && m.vlt != nil {
		data, err = m.readVault(ctx, name)
	}
	if err != nil {
		return Guard{}, ioErr("restore", file, name, err)
	}

	var g Guard
	if err := json.Unmarshal(data, &g); err != nil {
		return Guard{}, ioErr("restore", file, name, err)
	}
	if g.Format != guardFormat {
		return Guard{}, ioErr("restore", file, name, fmt.Errorf("unsupported guard format %d", g.Format))
	}
	return g, nil
}

func (m *Manager) readLocal(name string) ([]byte, error) {
	f, err := m.fsys.Open(filepath.Join(m.dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (m *Manager) readVault(ctx context.Context, name string) ([]byte, error) {
	rc, err := m.vlt.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (m *Manager) writeGuard(ctx context.Context, file string, g Guard) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return ioErr("archive", file, GuardName(file), err)
	}
	data = append(data, '\n')

	if err := m.writeArtifact(ctx, GuardName(file), bytes.NewReader(data)); err != nil {
		return ioErr("archive", file, GuardName(file), err)
	}
	return nil
}

// ensureLocalBundle downloads the bundle from the vault when the local copy
// is missing, so verification and unpacking always run against local bytes.
func (m *Manager) ensureLocalBundle(ctx context.Context, file, bundle string) error {
	_, err := m.fsys.Stat(filepath.Join(m.dir, bundle))
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return ioErr("restore", file, bundle, err)
	}
	if m.vlt == nil {
		return ioErr("restore", file, bundle, errors.New("bundle missing"))
	}

	rc, err := m.vlt.Get(ctx, bundle)
	if err != nil {
		return ioErr("restore", file, bundle, err)
	}
	defer rc.Close()

	if err := m.writeArtifact(ctx, bundle, rc); err != nil {
		return ioErr("restore", file, bundle, err)
	}
	return nil
}

func (m *Manager) verifyBundle(ctx context.Context, file string, g Guard) error {
	f, err := m.fsys.Open(filepath.Join(m.dir, g.Bundle))
	if err != nil {
		return ioErr("restore", file, g.Bundle, err)
	}
	defer f.Close()

	h := crc32.New(castagnoli)
	if _, err := io.Copy(h, resource.NewRateLimitedReader(ctx, f, m.rc)); err != nil {
		return ioErr("restore", file, g.Bundle, err)
	}
	if got := h.Sum32(); got != g.CRC32C {
		return ioErr("restore", file, g.Bundle, fmt.Errorf("bundle checksum %08x, guard wants %08x", got, g.CRC32C))
	}
	return nil
}

// verifyMembers re-checks every restored artifact's size against the guard,
// concurrently.
func (m *Manager) verifyMembers(ctx context.Context, file string, g Guard) error {
	grp, _ := errgroup.WithContext(ctx)
	for _, mem := range g.Members {
		grp.Go(func() error {
			info, err := m.fsys.Stat(filepath.Join(m.dir, mem.Name))
			if err != nil {
				return ioErr("restore", file, mem.Name, err)
			}
			if info.Size() != mem.Size {
				return ioErr("restore", file, mem.Name, fmt.Errorf("restored size %d, want %d", info.Size(), mem.Size))
			}
			return nil
		})
	}
	return grp.Wait()
}

func (m *Manager) upload(ctx context.Context, file, name string) error {
	src, err := m.fsys.Open(filepath.Join(m.dir, name))
	if err != nil {
		return ioErr("archive", file, name, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return ioErr("archive", file, name, err)
	}

	r := resource.NewRateLimitedReader(ctx, src, m.rc)
	if err := m.vlt.Put(ctx, name, r, info.Size()); err != nil {
		return ioErr("archive", file, name, err)
	}
	return nil
}

// writeArtifact lands r at dir/name via temp, sync and rename. On failure
// the temp file is removed and the live name is untouched.
func (m *Manager) writeArtifact(ctx context.Context, name string, r io.Reader) error {
	tmp := filepath.Join(m.dir, name+".tmp")
	dst, err := m.fsys.Create(tmp)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = dst.Close()
			_ = m.fsys.Remove(tmp)
		}
	}()

	if _, err := io.Copy(resource.NewRateLimitedWriter(ctx, dst, m.rc), r); err != nil {
		return err
	}
	if err := dst.Sync(); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	if err := m.fsys.Rename(tmp, filepath.Join(m.dir, name)); err != nil {
		return err
	}
	committed = true
	return nil
}
