//go:build !windows

package notification

// Other platforms only get the log line written by the callers.
func showPopup(title, message string, isError bool) error {
	return nil
}
