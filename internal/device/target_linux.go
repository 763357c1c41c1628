//go:build linux

package device

func rawDevicePath(identity string) string {
	return identity
}
