// Package fs abstracts the archive directory for testability and fault
// injection.
//
//   - [Local]: production implementation over the os package
//   - [Faulty]: test wrapper that injects write, sync, create and rename
//     failures
//
// Production code uses fs.Default. Tests inject a Faulty to exercise
// interrupted-archive paths:
//
//	ffs := fs.NewFaulty(nil)
//	ffs.SetWriteBudget(1024) // writes fail after 1 KiB
//
// The interfaces carry no context.Context: local filesystem calls are not
// interruptible at the syscall level, and slow remote storage goes through
// the vault packages, which do take contexts.
package fs
