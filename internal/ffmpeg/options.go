package ffmpeg

import (
	"fmt"
	"slices"
	"strings"
)

// OptionType represents a strongly typed FFmpeg behavior flag.
type OptionType string

// FFmpeg option constants.
const (
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionLowLatency         OptionType = "low_latency"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
	OptionReconnect          OptionType = "reconnect"
	OptionNoRealtime         OptionType = "no_realtime"
)

// OptionCategory groups options for display.
type OptionCategory string

// Option categories.
const (
	CategoryTiming      OptionCategory = "Timing"
	CategoryNetwork     OptionCategory = "Network"
	CategoryPerformance OptionCategory = "Performance"
)

// ExclusiveGroup represents a group of mutually exclusive options.
type ExclusiveGroup string

// GroupThreadQueue holds the thread queue sizes.
const GroupThreadQueue ExclusiveGroup = "thread_queue"

// Option describes an FFmpeg feature flag.
type Option struct {
	Key            OptionType      `json:"key"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       OptionCategory  `json:"category"`
	AppDefault     bool            `json:"app_default"`
	ExclusiveGroup *ExclusiveGroup `json:"exclusive_group,omitempty"`
}

func group(g ExclusiveGroup) *ExclusiveGroup { return &g }

// AllOptions lists the supported flags.
var AllOptions = []Option{
	{
		Key:         OptionWallclockTimestamp,
		Name:        "Wallclock Timestamps",
		Description: "Timestamp piped frames with the wallclock instead of the nominal frame rate",
		Category:    CategoryTiming,
	},
	{
		Key:         OptionNoRealtime,
		Name:        "Disable Realtime Read",
		Description: "Do not throttle input reads to the native rate (-re)",
		Category:    CategoryTiming,
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low Latency Mode",
		Description: "Tune the encoder for zero latency and flush packets immediately",
		Category:    CategoryPerformance,
	},
	{
		Key:            OptionThreadQueue1024,
		Name:           "Large Thread Queue",
		Description:    "Use a 1024 packet thread queue on each input",
		Category:       CategoryPerformance,
		AppDefault:     true,
		ExclusiveGroup: group(GroupThreadQueue),
	},
	{
		Key:            OptionThreadQueue4096,
		Name:           "Extra Large Thread Queue",
		Description:    "Use a 4096 packet thread queue on each input",
		Category:       CategoryPerformance,
		ExclusiveGroup: group(GroupThreadQueue),
	},
	{
		Key:         OptionReconnect,
		Name:        "Reconnect Audio",
		Description: "Reconnect the network audio input when the connection drops",
		Category:    CategoryNetwork,
		AppDefault:  true,
	},
}

// GetOptionByKey returns the option with the given key.
func GetOptionByKey(key OptionType) (*Option, bool) {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i], true
		}
	}
	return nil, false
}

// DefaultOptions returns the options enabled by default.
func DefaultOptions() []OptionType {
	var out []OptionType
	for _, opt := range AllOptions {
		if opt.AppDefault {
			out = append(out, opt.Key)
		}
	}
	return out
}

// ParseOptions converts configured option names and rejects unknown keys and
// conflicting members of an exclusive group.
func ParseOptions(names []string) ([]OptionType, error) {
	seen := make(map[ExclusiveGroup]OptionType)
	out := make([]OptionType, 0, len(names))
	for _, name := range names {
		key := OptionType(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		opt, ok := GetOptionByKey(key)
		if !ok {
			return nil, fmt.Errorf("unknown ffmpeg option %q", name)
		}
		if opt.ExclusiveGroup != nil {
			if prev, dup := seen[*opt.ExclusiveGroup]; dup && prev != key {
				return nil, fmt.Errorf("ffmpeg options %q and %q are mutually exclusive", prev, key)
			}
			seen[*opt.ExclusiveGroup] = key
		}
		if !slices.Contains(out, key) {
			out = append(out, key)
		}
	}
	return out, nil
}

// threadQueueSize returns the configured queue size, or 0 if none is set.
func threadQueueSize(opts []OptionType) int {
	switch {
	case slices.Contains(opts, OptionThreadQueue4096):
		return 4096
	case slices.Contains(opts, OptionThreadQueue1024):
		return 1024
	}
	return 0
}
