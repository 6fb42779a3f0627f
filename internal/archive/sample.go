package archive

import "github.com/tracedeck/tracedeck/internal/sampler"

// SampleScreenshots picks up to slots screenshots spread evenly across the
// capture window, for preview strips.
func SampleScreenshots(metas []ScreenshotMeta, slots int) []ScreenshotMeta {
	return sampler.Select(metas, func(m ScreenshotMeta) int64 {
		return m.TimestampMs
	}, slots)
}
