// Package testing builds intermediate output trees and checks bundle output in tests.
package testing

const (
	// testDirPermissions is the permission mode for fixture directories.
	testDirPermissions = 0o750

	// testFilePermissions is the permission mode for fixture files.
	testFilePermissions = 0o600
)
