//go:build !windows

package watch

func sameFile(a, b string) bool { return a == b }
