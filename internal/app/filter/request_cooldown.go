package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/xkatng/twitch-song-requests/internal/domain/song"
)

// RequestCooldownConfig represents the configuration for RequestCooldownFilter.
type RequestCooldownConfig struct {
	// RedemptionsBypassCooldown exempts Channel Points redemptions from the
	// cooldown window: the viewer already paid points for the request.
	RedemptionsBypassCooldown bool `yaml:"redemptions_bypass_cooldown" mapstructure:"redemptions_bypass_cooldown" default:"false"`
}

// RequestCooldownFilter rejects requests made inside the requester's
// cooldown window. The window length is a runtime setting carried in the
// state view; only the bypass policy is filter configuration.
type RequestCooldownFilter struct {
	config *RequestCooldownConfig
}

// NewRequestCooldownFilter creates a new cooldown filter.
func NewRequestCooldownFilter() *RequestCooldownFilter {
	return &RequestCooldownFilter{}
}

func (f *RequestCooldownFilter) Name() string {
	return "request_cooldown_filter"
}

func (f *RequestCooldownFilter) Description() string {
	return "Rejects repeat requests inside the per-viewer cooldown window"
}

func (f *RequestCooldownFilter) ReturnCodes() []string {
	return []string{CodeCooldown}
}

func (f *RequestCooldownFilter) ValidateConfig(settings map[string]any) error {
	var config RequestCooldownConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &config,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.config = &config
	zlog.Info().Msgf("request cooldown filter config: %+v", config)
	return nil
}

func (f *RequestCooldownFilter) AppliesTo(source song.Source) bool {
	if f.config != nil && f.config.RedemptionsBypassCooldown && source == song.SourceRedemption {
		return false
	}
	return true
}

func (f *RequestCooldownFilter) Check(ctx context.Context, c Candidate, s State) Result {
	if s.CooldownWindow <= 0 || s.LastRequestAt.IsZero() {
		return Accept()
	}

	elapsed := s.Now.Sub(s.LastRequestAt)
	if elapsed < s.CooldownWindow {
		return RejectRetryAfter(CodeCooldown, s.CooldownWindow-elapsed)
	}
	return Accept()
}

func init() {
	Register("request_cooldown_filter", func() Filter {
		return NewRequestCooldownFilter()
	})
}
