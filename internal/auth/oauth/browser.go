package oauth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser hands the URL to the platform's URL opener. The spawned
// process is not waited on; the authorization flow continues regardless of
// what the browser does with it.
func OpenBrowser(url string) error {
	var name string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "cmd", []string{"/c", "start"}
	default:
		// Linux and the BSDs route through freedesktop.
		name = "xdg-open"
	}

	if err := exec.Command(name, append(args, url)...).Start(); err != nil {
		return fmt.Errorf("launching %s: %w", name, err)
	}
	return nil
}
