package notification

import (
	"log"
)

const maxMessageLen = 300

// ShowError reports a failed capture or upload to the user. It does not block.
func ShowError(title, message string) {
	message = truncate(message)
	log.Printf("%s: %s", title, message)
	go func() {
		if err := showPopup(title, message, true); err != nil {
			log.Printf("Failed to show notification: %v", err)
		}
	}()
}

// ShowInfo reports a successful upload.
func ShowInfo(title, message string) {
	message = truncate(message)
	log.Printf("%s: %s", title, message)
	go func() {
		if err := showPopup(title, message, false); err != nil {
			log.Printf("Failed to show notification: %v", err)
		}
	}()
}

// ShowBlockingError is used before exit, when a detached popup would be lost.
func ShowBlockingError(title, message string) {
	message = truncate(message)
	log.Printf("%s: %s", title, message)
	if err := showPopup(title, message, true); err != nil {
		log.Printf("Failed to show notification: %v", err)
	}
}

func truncate(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen] + "..."
	}
	return s
}
