//go:build windows

package notification

import (
	"golang.org/x/sys/windows"
)

const (
	mbOK            = 0x00000000
	mbIconError     = 0x00000010
	mbIconInfo      = 0x00000040
	mbTopmost       = 0x00040000
	mbSetForeground = 0x00010000
)

func showPopup(title, message string, isError bool) error {
	t, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	m, err := windows.UTF16PtrFromString(message)
	if err != nil {
		return err
	}
	flags := uint32(mbOK | mbTopmost | mbSetForeground)
	if isError {
		flags |= mbIconError
	} else {
		flags |= mbIconInfo
	}
	_, err = windows.MessageBox(0, m, t, flags)
	return err
}
