//go:build !linux

package notify

// New returns the platform notifier. Only the freedesktop bus is supported;
// elsewhere notifications are dropped.
func New(appName string) Notifier {
	return Nop
}
