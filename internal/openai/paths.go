// Package openai describes the OpenAI upstream surface the gateway mediates:
// the canonical subpaths it may reach and the model catalog it may rewrite.
package openai

// Path is an upstream-relative OpenAI subpath.
type Path string

const (
	ChatPath      Path = "v1/chat/completions"
	SpeechPath    Path = "v1/audio/speech"
	ImagePath     Path = "v1/images/generations"
	UsagePath     Path = "dashboard/billing/usage"
	SubsPath      Path = "dashboard/billing/subscription"
	ListModelPath Path = "v1/models"
)

// Paths enumerates every subpath the OpenAI provider exposes through the gateway.
func Paths() []Path {
	return []Path{
		ChatPath,
		SpeechPath,
		ImagePath,
		UsagePath,
		SubsPath,
		ListModelPath,
	}
}
