package deps

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// EncoderType is the media kind flag of an ffmpeg encoder line.
type EncoderType string

const (
	VideoEncoder    EncoderType = "V"
	AudioEncoder    EncoderType = "A"
	SubtitleEncoder EncoderType = "S"
	Unknown         EncoderType = "?"
)

// Encoder is one line of `ffmpeg -encoders`.
type Encoder struct {
	Type        EncoderType `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	HWAccel     bool        `json:"hwaccel"`
}

var (
	encoderRegex = regexp.MustCompile(`^\s*([VASFXBD.]{6})\s+(\S+)\s+(.+)$`)
	hwaccelRegex = regexp.MustCompile(`(?i)(nvenc|qsv|amf|vaapi|videotoolbox|v4l2m2m|rkmpp|vdpau|cuda|vulkan)`)
)

// ListEncoders runs `ffmpeg -encoders` and parses the result.
func ListEncoders(ctx context.Context, binary string) ([]Encoder, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	return parseEncoderOutput(string(output))
}

// parseEncoderOutput reads the table below the " ------" separator line.
func parseEncoderOutput(output string) ([]Encoder, error) {
	var result []Encoder
	started := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !started {
			started = strings.HasPrefix(strings.TrimSpace(line), "------")
			continue
		}

		matches := encoderRegex.FindStringSubmatch(line)
		if len(matches) != 4 {
			continue
		}
		flags, name, description := matches[1], matches[2], strings.TrimSpace(matches[3])

		encoderType := Unknown
		switch flags[0] {
		case 'V':
			encoderType = VideoEncoder
		case 'A':
			encoderType = AudioEncoder
		case 'S':
			encoderType = SubtitleEncoder
		}

		result = append(result, Encoder{
			Type:        encoderType,
			Name:        name,
			Description: description,
			HWAccel:     hwaccelRegex.MatchString(name) || hwaccelRegex.MatchString(description),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading output: %w", err)
	}
	return result, nil
}

// CheckEncoders reports whether each wanted encoder is in the list.
func CheckEncoders(available []Encoder, wanted ...Requirement) []Status {
	index := make(map[string]Encoder, len(available))
	for _, enc := range available {
		index[enc.Name] = enc
	}

	results := make([]Status, 0, len(wanted))
	for _, req := range wanted {
		status := Status{
			Name:        req.Name,
			Command:     req.Command,
			Description: req.Description,
			Optional:    req.Optional,
		}
		if enc, ok := index[req.Command]; ok {
			status.Available = true
			if enc.HWAccel {
				status.Detail = "hardware accelerated"
			}
		} else {
			status.Detail = fmt.Sprintf("encoder %q not built into ffmpeg", req.Command)
		}
		results = append(results, status)
	}
	return results
}
