package deps

import (
	"os/exec"
	"strings"
)

// chromiumCandidates are tried in order when no browser path is configured.
var chromiumCandidates = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// CheckChromium resolves the browser pagecast will launch. A configured path
// must exist; otherwise the first candidate on PATH wins.
func CheckChromium(configured string) Status {
	status := Status{
		Name:        "Chromium",
		Description: "Renders and captures the page",
	}

	if configured = strings.TrimSpace(configured); configured != "" {
		return CheckBinaries([]Requirement{{
			Name:        status.Name,
			Command:     configured,
			Description: status.Description,
		}})[0]
	}

	for _, candidate := range chromiumCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			status.Command = path
			status.Available = true
			return status
		}
	}
	status.Command = chromiumCandidates[1]
	status.Detail = "no Chromium or Chrome binary found on PATH"
	return status
}
