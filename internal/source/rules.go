package source

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"reel/internal/config"
	"reel/internal/services/zoom"
)

// Rules decides which discovered recordings are worth processing.
type Rules struct {
	minDuration time.Duration
	excludes    []*regexp.Regexp
}

// NewRules compiles the intake rules from configuration.
func NewRules(cfg *config.Config) (*Rules, error) {
	rules := &Rules{
		minDuration: time.Duration(cfg.Source.MinDurationMinutes) * time.Minute,
	}
	for _, pattern := range cfg.Source.TitleExcludePatterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		compiled, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile title exclude pattern %q: %w", pattern, err)
		}
		rules.excludes = append(rules.excludes, compiled)
	}
	return rules, nil
}

// Evaluate returns an empty string when the meeting should be processed, or
// the skip reason when it should be recorded as skipped.
func (r *Rules) Evaluate(meeting zoom.Meeting) string {
	if duration := time.Duration(meeting.Duration) * time.Minute; duration < r.minDuration {
		return fmt.Sprintf("shorter than minimum duration (%s < %s)", duration, r.minDuration)
	}
	for _, exclude := range r.excludes {
		if exclude.MatchString(meeting.Topic) {
			return fmt.Sprintf("title matches exclude pattern %q", exclude.String())
		}
	}
	if _, ok := meeting.PrimaryVideo(); !ok {
		return "no completed video file available"
	}
	return ""
}
