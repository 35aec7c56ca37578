package config

import "TrackPublisher/internal/domain"

// DomainBuckets converts bucket settings into rotation buckets.
func (c Config) DomainBuckets() []domain.Bucket {
	buckets := make([]domain.Bucket, 0, len(c.Buckets))
	for _, b := range c.Buckets {
		buckets = append(buckets, domain.Bucket{
			Name:       b.Name,
			Region:     b.Region,
			Category:   b.Category,
			Source:     b.Source,
			ChartURL:   b.ChartURL,
			Queries:    append([]string(nil), b.Queries...),
			PlaylistID: b.PlaylistID,
		})
	}
	return buckets
}

// DomainUploadTypes converts the upload-type rotation. Unknown names are treated as single uploads.
func (c Config) DomainUploadTypes() []domain.UploadType {
	types := make([]domain.UploadType, 0, len(c.UploadTypes))
	for _, t := range c.UploadTypes {
		if domain.UploadType(t) == domain.UploadMashup {
			types = append(types, domain.UploadMashup)
			continue
		}
		types = append(types, domain.UploadSingle)
	}
	return types
}

// DomainVariants converts the downloader access strategies.
func (c Config) DomainVariants() []domain.DownloadVariant {
	variants := make([]domain.DownloadVariant, 0, len(c.Download.Variants))
	for _, v := range c.Download.Variants {
		variants = append(variants, domain.DownloadVariant{Client: v.Client, Format: v.Format})
	}
	return variants
}

// EffectParams converts the DSP settings.
func (c Config) EffectParams() domain.EffectParams {
	return domain.EffectParams{
		SlowFactor:     c.Audio.SlowFactor,
		ReverbRoom:     c.Audio.ReverbRoom,
		ReverbWet:      c.Audio.ReverbWet,
		TargetLoudness: c.Audio.TargetLUFS,
		FadeInSec:      c.Audio.FadeInSec,
		FadeOutSec:     c.Audio.FadeOutSec,
	}
}
