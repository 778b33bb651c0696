package playback

import "sync/atomic"

// Provider identifies a decoder implementation.
type Provider uint8

const (
	ProviderAuto     Provider = iota // Let library choose best available
	ProviderOpenH264                 // BSD H.264 decoder (libmedia_h264)
	ProviderLibopus                  // BSD Opus decoder (libstream_opus)
	ProviderFFmpeg                   // ffmpeg subprocess, LGPL/GPL depending on build
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseGPL License = iota // Copyleft - requires source disclosure
	LicenseBSD                // Permissive - no copyleft obligations
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

func (l License) String() string {
	switch l {
	case LicenseGPL:
		return "GPL"
	case LicenseBSD:
		return "BSD"
	default:
		return "unknown"
	}
}

// Features is a bitmask of provider capabilities.
type Features uint32

const (
	FeatureInProcess   Features = 1 << iota // decodes without a helper process
	FeatureFlush                            // emits buffered output on Flush
	FeatureMultithread                      // honours the Threads setting
)

// Has returns true if all specified features are supported.
func (f Features) Has(feature Features) bool { return f&feature == feature }

type providerMeta struct {
	Name     string
	License  License
	Features Features
}

// Static metadata table, indexed by Provider.
var providerInfo = [providerCount]providerMeta{
	ProviderAuto:     {"auto", LicenseBSD, 0},
	ProviderOpenH264: {"openh264", LicenseBSD, FeatureInProcess | FeatureMultithread},
	ProviderLibopus:  {"libopus", LicenseBSD, FeatureInProcess},
	ProviderFFmpeg:   {"ffmpeg", LicenseGPL, FeatureFlush | FeatureMultithread},
}

// Runtime availability, set by init() in provider implementations.
var providerAvailable [providerCount]atomic.Bool

// ParseProvider maps a provider name to its value. Unknown names map to
// ProviderAuto with ok=false.
func ParseProvider(name string) (Provider, bool) {
	if name == "" {
		return ProviderAuto, true
	}
	for p := Provider(0); p < providerCount; p++ {
		if providerInfo[p].Name == name {
			return p, true
		}
	}
	return ProviderAuto, false
}

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// License returns the provider's license type.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Features returns the provider's feature bitmask.
func (p Provider) Features() Features {
	if p >= providerCount {
		return 0
	}
	return providerInfo[p].Features
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

func setProviderAvailable(p Provider) {
	if p < providerCount {
		providerAvailable[p].Store(true)
	}
}
