// Package filespec defines the database schema configuration.
//
// A FileSpec maps file names to their definition: the primary field, the
// secondary fields to index, the segment window size and the compression
// and layout policies. It is pure configuration, consumed and never mutated
// by the components that read it.
//
// The package also owns the artifact naming contract. Storage namespaces
// and on-disk artifacts derive from file and field names joined with the
// reserved separator "_": field stores are named file_field, role stores
// file__ebm and file__segment. Validation rejects names containing the
// separator, which is what keeps the naming collision-free.
package filespec
