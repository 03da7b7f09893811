// Package rate resolves a provider's per-minute price out of the legacy rate
// schema, which carries up to six overlapping fields for the same concept.
package rate

import (
	"errors"
	"fmt"

	"consultly/models"
	"consultly/utils"

	"go.uber.org/zap"
)

// ErrRateNotConfigured means the provider has no usable rate for the
// requested consultation type. Callers treat the consultation as free rather
// than failing the call.
var ErrRateNotConfigured = errors.New("provider has no rate configured for this consultation type")

// Resolve returns the canonical per-minute rate for the given consultation
// type. Precedence, highest first:
//
//	chat:  rates.chat
//	audio: rates.per_minute.audio, rates.per_minute.audio_video,
//	       rates.audio, rates.audio_video
//	video: rates.per_minute.video, rates.per_minute.audio_video,
//	       rates.video, rates.audio_video
//
// The first positive field wins. A fully unset type resolves to 0 with
// ErrRateNotConfigured; it never falls back to a field belonging to another
// consultation type.
func Resolve(provider *models.Provider, consultationType string) (float64, error) {
	if provider == nil {
		return 0, ErrRateNotConfigured
	}

	candidates, err := candidateFields(provider, consultationType)
	if err != nil {
		return 0, err
	}

	resolved := 0.0
	for _, c := range candidates {
		if c.value > 0 {
			resolved = c.value
			break
		}
	}

	logDisagreement(provider.ID, consultationType, resolved, candidates)

	if resolved == 0 {
		return 0, ErrRateNotConfigured
	}
	return resolved, nil
}

type rateField struct {
	name  string
	value float64
}

func candidateFields(p *models.Provider, consultationType string) ([]rateField, error) {
	r := p.Rates
	switch consultationType {
	case models.TypeChat:
		return []rateField{
			{"rates.chat", r.Chat},
		}, nil
	case models.TypeAudio:
		return []rateField{
			{"rates.per_minute.audio", r.PerMinute.Audio},
			{"rates.per_minute.audio_video", r.PerMinute.AudioVideo},
			{"rates.audio", r.Audio},
			{"rates.audio_video", r.AudioVideo},
		}, nil
	case models.TypeVideo:
		return []rateField{
			{"rates.per_minute.video", r.PerMinute.Video},
			{"rates.per_minute.audio_video", r.PerMinute.AudioVideo},
			{"rates.video", r.Video},
			{"rates.audio_video", r.AudioVideo},
		}, nil
	}
	return nil, fmt.Errorf("unknown consultation type %q", consultationType)
}

// logDisagreement warns when more than one populated legacy field carries a
// different value. That pattern has historically meant a data entry error
// upstream (rates off by an order of magnitude), so it is worth surfacing.
// Resolution only runs at acceptance time, never per billing tick.
func logDisagreement(providerID, consultationType string, resolved float64, candidates []rateField) {
	var populated []rateField
	disagree := false
	for _, c := range candidates {
		if c.value > 0 {
			populated = append(populated, c)
			if c.value != resolved {
				disagree = true
			}
		}
	}
	if !disagree || len(populated) < 2 {
		return
	}

	fields := make([]string, 0, len(populated))
	for _, c := range populated {
		fields = append(fields, fmt.Sprintf("%s=%.2f", c.name, c.value))
	}
	utils.GetLogger().Warn("provider rate fields disagree",
		zap.String("providerId", providerID),
		zap.String("type", consultationType),
		zap.Float64("resolved", resolved),
		zap.Strings("fields", fields),
	)
}
