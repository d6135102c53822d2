package filespec

import "slices"

// FieldArtifact names the store holding one secondary field's segments.
func FieldArtifact(file, field string) string {
	return file + Separator + field
}

// RoleArtifact names a per-file role store (RoleEBM, RoleSegment).
func RoleArtifact(file, role string) string {
	return file + Separator + Separator + role
}

// CombinedArtifact names the single store of a combined-layout file.
func CombinedArtifact(file string) string {
	return file
}

// ArtifactNames returns the complete artifact set for a file in
// deterministic order: field artifacts sorted, then the ebm and segment
// role artifacts. A combined-layout file has exactly one artifact. Unknown
// files return nil.
func (s FileSpec) ArtifactNames(file string) []string {
	d, ok := s[file]
	if !ok {
		return nil
	}

	if d.Layout == LayoutCombined {
		return []string{CombinedArtifact(file)}
	}

	names := make([]string, 0, len(d.Secondary)+2)
	for _, field := range d.Secondary {
		names = append(names, FieldArtifact(file, field))
	}
	slices.Sort(names)
	return append(names, RoleArtifact(file, RoleEBM), RoleArtifact(file, RoleSegment))
}
