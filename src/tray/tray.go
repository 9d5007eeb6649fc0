package tray

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/getlantern/systray"

	"screenshotr/src/notification"
)

// Config describes the tray icon and its menu actions.
type Config struct {
	Title   string
	Tooltip string
	// OnCapture is called from the menu goroutine when "Capture region" is clicked.
	OnCapture func()
	// OnExit runs once the tray loop has stopped.
	OnExit func()
}

type Tray struct {
	cfg  Config
	done chan struct{}
}

var (
	mu         sync.Mutex
	ready      bool
	tooltip    string
	aboutLines = map[string]string{}
)

// New prepares a tray icon. Run must be called to show it.
func New(cfg Config) (*Tray, error) {
	if cfg.Title == "" {
		return nil, fmt.Errorf("tray title is required")
	}
	mu.Lock()
	tooltip = cfg.Tooltip
	mu.Unlock()
	return &Tray{cfg: cfg, done: make(chan struct{})}, nil
}

// Run blocks on the systray event loop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Destroy stops the systray loop if it is running.
func (t *Tray) Destroy() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetIcon(Icon())
	systray.SetTitle(t.cfg.Title)

	mu.Lock()
	ready = true
	tt := tooltip
	mu.Unlock()
	systray.SetTooltip(tt)

	mCapture := systray.AddMenuItem("Capture region", "Select a screen region and upload it")
	mAbout := systray.AddMenuItem("About", "About "+t.cfg.Title)
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")

	go func() {
		for {
			select {
			case <-mCapture.ClickedCh:
				if t.cfg.OnCapture != nil {
					t.cfg.OnCapture()
				}
			case <-mAbout.ClickedCh:
				notification.ShowInfo("About "+t.cfg.Title, aboutText(t.cfg.Title))
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			case <-t.done:
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	mu.Lock()
	ready = false
	mu.Unlock()
	close(t.done)
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

// UpdateTooltip changes the tooltip; before Run it only records the text.
func UpdateTooltip(text string) {
	mu.Lock()
	tooltip = text
	isReady := ready
	mu.Unlock()
	if isReady {
		systray.SetTooltip(text)
	}
}

// SetAboutHotkey shows the configured hotkey in the About box.
func SetAboutHotkey(hotkey string) {
	setAbout("hotkey", "Hotkey: "+hotkey)
}

// SetAboutExtra adds a free-form line to the About box.
func SetAboutExtra(line string) {
	setAbout("extra", line)
}

func setAbout(key, line string) {
	mu.Lock()
	defer mu.Unlock()
	if line == "" {
		delete(aboutLines, key)
		return
	}
	aboutLines[key] = line
}

func aboutText(title string) string {
	mu.Lock()
	defer mu.Unlock()
	lines := []string{title, "Captures a screen region and uploads it; the URL is copied to the clipboard."}
	for _, key := range []string{"hotkey", "extra"} {
		if l, ok := aboutLines[key]; ok {
			lines = append(lines, l)
		}
	}
	log.Printf("tray: about requested")
	return strings.Join(lines, "\n")
}
