package filespec

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/RogerMarsh/solentware-base-sub003/segment"
)

// Separator is reserved in file and field names. Artifact naming joins
// names with it, so a name containing it could collide with another file's
// artifacts.
const Separator = "_"

// Role tokens for the per-file role artifacts.
const (
	RoleEBM     = "ebm"
	RoleSegment = "segment"
)

// Compression selects the segment payload representation policy.
type Compression uint8

const (
	// CompressAdaptive picks List or Bitmap per segment by cardinality.
	CompressAdaptive Compression = iota

	// CompressNone pins the List representation.
	CompressNone
)

func (c Compression) String() string {
	switch c {
	case CompressAdaptive:
		return "adaptive"
	case CompressNone:
		return "none"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Layout selects how a file's stores map to engine namespaces.
type Layout uint8

const (
	// LayoutPerField gives every secondary field its own namespace.
	LayoutPerField Layout = iota

	// LayoutCombined keeps the whole file in one namespace, with the
	// field name leading each composite key.
	LayoutCombined
)

func (l Layout) String() string {
	switch l {
	case LayoutPerField:
		return "per-field"
	case LayoutCombined:
		return "combined"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

// FileDef describes one file. The zero values of SegmentSize and
// ListThreshold select the codec defaults.
type FileDef struct {
	// Primary names the record payload field.
	Primary string

	// Secondary names the indexed fields. At least one is required.
	Secondary []string

	// SegmentSize is the record window size. 0 selects
	// segment.DefaultSegmentSize.
	SegmentSize int

	// ListThreshold overrides the List/Bitmap conversion cardinality.
	// 0 derives it from the segment size.
	ListThreshold int

	Compression Compression
	Layout      Layout

	// Backup archives the file's artifacts before a deferred update.
	Backup bool
}

// EffectiveSegmentSize resolves the zero-value default.
func (d FileDef) EffectiveSegmentSize() int {
	if d.SegmentSize == 0 {
		return segment.DefaultSegmentSize
	}
	return d.SegmentSize
}

// FileSpec is the whole database schema, keyed by file name.
type FileSpec map[string]FileDef

// ValidationError reports one way a FileSpec violates the construction
// rules. Field is empty for file-level violations.
type ValidationError struct {
	File   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("filespec: file %q field %q: %s", e.File, e.Field, e.Reason)
	}
	return fmt.Sprintf("filespec: file %q: %s", e.File, e.Reason)
}

// Validate checks the whole specification and reports every violation,
// joined. A nil return means the spec is usable as-is.
func (s FileSpec) Validate() error {
	var errs []error

	for _, file := range slices.Sorted(maps.Keys(s)) {
		errs = append(errs, validateFile(file, s[file])...)
	}

	return errors.Join(errs...)
}

func validateFile(file string, d FileDef) []error {
	var errs []error
	fileErr := func(reason string, args ...any) {
		errs = append(errs, &ValidationError{File: file, Reason: fmt.Sprintf(reason, args...)})
	}
	fieldErr := func(field, reason string, args ...any) {
		errs = append(errs, &ValidationError{File: file, Field: field, Reason: fmt.Sprintf(reason, args...)})
	}

	if file == "" {
		fileErr("empty file name")
	} else if strings.Contains(file, Separator) {
		fileErr("file name contains reserved separator %q", Separator)
	}

	switch {
	case d.Primary == "":
		fileErr("empty primary field name")
	case strings.Contains(d.Primary, Separator):
		fieldErr(d.Primary, "primary field name contains reserved separator %q", Separator)
	}

	if len(d.Secondary) == 0 {
		fileErr("no secondary fields")
	}

	seen := make(map[string]struct{}, len(d.Secondary))
	for _, field := range d.Secondary {
		switch {
		case field == "":
			fileErr("empty secondary field name")
			continue
		case strings.Contains(field, Separator):
			fieldErr(field, "field name contains reserved separator %q", Separator)
			continue
		}
		if field == d.Primary {
			fieldErr(field, "secondary field collides with primary")
		}
		if _, dup := seen[field]; dup {
			fieldErr(field, "duplicate secondary field")
		}
		seen[field] = struct{}{}
	}

	size := d.EffectiveSegmentSize()
	if _, err := segment.NewCodec(size); err != nil {
		fileErr("segment size %d: %v", d.SegmentSize, err)
	} else if d.ListThreshold != 0 {
		if _, err := segment.NewCodec(size, segment.WithListThreshold(d.ListThreshold)); err != nil {
			fileErr("list threshold %d: %v", d.ListThreshold, err)
		}
	}

	if d.Compression > CompressNone {
		fileErr("unknown compression policy %d", uint8(d.Compression))
	}
	if d.Layout > LayoutCombined {
		fileErr("unknown layout policy %d", uint8(d.Layout))
	}

	return errs
}

// Codec builds the segment codec a file's definition calls for.
func (d FileDef) Codec() (*segment.Codec, error) {
	var opts []segment.CodecOption
	if d.ListThreshold != 0 {
		opts = append(opts, segment.WithListThreshold(d.ListThreshold))
	}
	if d.Compression == CompressNone {
		opts = append(opts, segment.WithNoCompress())
	}
	return segment.NewCodec(d.EffectiveSegmentSize(), opts...)
}
