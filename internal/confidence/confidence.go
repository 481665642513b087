// Package confidence buckets best-match retrieval distances into tiers, each
// carrying the instruction annotation placed in front of the retrieved context.
//
// The default thresholds (0.8 / 1.2) were calibrated on squared L2 distances
// between normalised sentence-embedding vectors. They do not carry over to other
// embedding models or distance metrics and must be recalibrated for those.
package confidence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tier is a discrete confidence bucket derived from the best-match distance.
type Tier string

const (
	// TierNone is reported when nothing was retrieved and no tier applies.
	TierNone Tier = ""
	// TierHigh means the best match is close; no annotation is added.
	TierHigh Tier = "high"
	// TierModerate means the context may only partially answer the question.
	TierModerate Tier = "moderate"
	// TierLow means the context is weakly related and the answer should hedge.
	TierLow Tier = "low"
)

func (t Tier) String() string {
	if t == TierNone {
		return "none"
	}
	return string(t)
}

// ScorePlaceholder is replaced by the formatted distance in annotation templates.
const ScorePlaceholder = "{score}"

const (
	// DefaultModerateNote is prepended to the context for TierModerate.
	DefaultModerateNote = "[System note: the closest passage has a distance score of {score}, " +
		"so the context may only partially cover the question. Answer from the context " +
		"and state the scope of what it covers.]"
	// DefaultLowNote is prepended to the context for TierLow.
	DefaultLowNote = "[System note: the closest passage has a distance score of {score}, " +
		"so the context is only weakly related to the question. Hedge your answer, and if " +
		"you are genuinely unsure, say that the documents do not specify it.]"
)

// Thresholds are the two ascending distance boundaries between tiers.
type Thresholds struct {
	High float64 `yaml:"high"`
	Low  float64 `yaml:"low"`
}

// Config holds everything the three-tier classifier reads.
type Config struct {
	Thresholds   Thresholds
	Precision    int
	ModerateNote string
	LowNote      string
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds:   Thresholds{High: 0.8, Low: 1.2},
		Precision:    2,
		ModerateNote: DefaultModerateNote,
		LowNote:      DefaultLowNote,
	}
}

// Validate checks threshold ordering and precision bounds.
func (c Config) Validate() error {
	if c.Thresholds.High < 0 {
		return fmt.Errorf("high threshold %v must not be negative", c.Thresholds.High)
	}
	if c.Thresholds.High >= c.Thresholds.Low {
		return fmt.Errorf("high threshold %v must be below low threshold %v", c.Thresholds.High, c.Thresholds.Low)
	}
	if c.Precision < 0 || c.Precision > 6 {
		return fmt.Errorf("score precision %d out of range 0..6", c.Precision)
	}
	if strings.TrimSpace(c.ModerateNote) == "" || strings.TrimSpace(c.LowNote) == "" {
		return errors.New("moderate and low annotations must not be empty")
	}
	return nil
}

// Classifier maps a best-match distance to a tier and its annotation.
type Classifier interface {
	Classify(distance float64) (Tier, string)
}

// ThreeTier is the HIGH / MODERATE / LOW classifier.
type ThreeTier struct {
	cfg Config
}

// NewThreeTier validates cfg and returns a classifier over it.
func NewThreeTier(cfg Config) (*ThreeTier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("confidence config: %w", err)
	}
	return &ThreeTier{cfg: cfg}, nil
}

// Classify returns HIGH with an empty annotation below the high threshold,
// MODERATE below the low threshold and LOW otherwise (NaN included).
func (c *ThreeTier) Classify(distance float64) (Tier, string) {
	switch {
	case distance < c.cfg.Thresholds.High:
		return TierHigh, ""
	case distance < c.cfg.Thresholds.Low:
		return TierModerate, c.render(c.cfg.ModerateNote, distance)
	default:
		return TierLow, c.render(c.cfg.LowNote, distance)
	}
}

// FormatScore renders a distance at the configured precision.
func (c *ThreeTier) FormatScore(distance float64) string {
	return strconv.FormatFloat(distance, 'f', c.cfg.Precision, 64)
}

// Thresholds returns the configured boundaries.
func (c *ThreeTier) Thresholds() Thresholds { return c.cfg.Thresholds }

func (c *ThreeTier) render(tmpl string, distance float64) string {
	return strings.ReplaceAll(tmpl, ScorePlaceholder, c.FormatScore(distance))
}
