//go:build !unix

package localfiles

// lockFile is a no-op where flock is unavailable; only the in-process mutex
// guards the file.
func lockFile(string, bool) (func(), error) {
	return func() {}, nil
}
