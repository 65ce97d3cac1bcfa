package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserCommand returns the command that opens url in the default browser of goos.
func BrowserCommand(goos, url string) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.Command("open", url), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		return nil, fmt.Errorf("cannot open a browser on %s; visit %s", goos, url)
	}
}

// OpenBrowser starts the system browser on url without waiting for it to exit.
//
// Callers log the URL when this fails so it can be opened by hand.
func OpenBrowser(url string) error {
	cmd, err := BrowserCommand(runtime.GOOS, url)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
