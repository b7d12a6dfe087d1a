// Package registry is the static catalog of selectable multimodal models.
package registry

import (
	"fmt"
	"strings"
)

// Kind selects the adapter implementation that handles a model
type Kind string

const (
	// KindAnthropic is the Anthropic messages API
	KindAnthropic Kind = "anthropic"

	// KindGoogle is the Google generative language API
	KindGoogle Kind = "google"

	// KindMistral is the Mistral chat API
	KindMistral Kind = "mistral"

	// KindOpenAI is the OpenAI chat completions API
	KindOpenAI Kind = "openai"

	// KindTogetherAI is TogetherAI's OpenAI-compatible endpoint
	KindTogetherAI Kind = "togetherai"

	// KindAlibabaCloud is DashScope's OpenAI-compatible endpoint
	KindAlibabaCloud Kind = "alibabacloud"
)

// Kinds lists every adapter kind, in catalog order
var Kinds = []Kind{KindAnthropic, KindGoogle, KindMistral, KindTogetherAI, KindOpenAI, KindAlibabaCloud}

// Descriptor identifies one selectable remote model
type Descriptor struct {
	// PlatformID is the vendor name shown to users (e.g. "Anthropic")
	PlatformID string

	// ModelID is the vendor's model identifier
	ModelID string

	// Kind selects the adapter implementation
	Kind Kind

	// TersePrompt marks small open models that follow a shorter OCR instruction better
	TersePrompt bool
}

// Key returns the composite "platform/model" key used for lookups and credential records
func (d Descriptor) Key() string {
	return d.PlatformID + "/" + d.ModelID
}

// String returns the label used in selection lists
func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.ModelID, d.PlatformID)
}

var catalog = []Descriptor{
	{PlatformID: "Anthropic", ModelID: "claude-3-5-sonnet-20241022", Kind: KindAnthropic},
	{PlatformID: "Anthropic", ModelID: "claude-3-haiku-20240307", Kind: KindAnthropic},
	{PlatformID: "Google", ModelID: "gemini-1.5-flash", Kind: KindGoogle},
	{PlatformID: "Google", ModelID: "gemini-1.5-flash-8b", Kind: KindGoogle},
	{PlatformID: "Google", ModelID: "gemini-1.5-pro", Kind: KindGoogle},
	{PlatformID: "Google", ModelID: "gemini-exp-1114", Kind: KindGoogle},
	{PlatformID: "Mistral", ModelID: "pixtral-12b-2409", Kind: KindMistral},
	{PlatformID: "TogetherAI", ModelID: "meta-llama/Llama-3.2-11B-Vision-Instruct-Turbo", Kind: KindTogetherAI, TersePrompt: true},
	{PlatformID: "TogetherAI", ModelID: "meta-llama/Llama-3.2-90B-Vision-Instruct-Turbo", Kind: KindTogetherAI, TersePrompt: true},
	{PlatformID: "TogetherAI", ModelID: "meta-llama/Llama-Vision-Free", Kind: KindTogetherAI, TersePrompt: true},
	{PlatformID: "OpenAI", ModelID: "gpt-4o-mini-2024-07-18", Kind: KindOpenAI},
	{PlatformID: "OpenAI", ModelID: "gpt-4o-2024-08-06", Kind: KindOpenAI},
	{PlatformID: "AlibabaCloud", ModelID: "qwen-vl-plus", Kind: KindAlibabaCloud},
	{PlatformID: "AlibabaCloud", ModelID: "qwen-vl-max", Kind: KindAlibabaCloud},
}

var byKey = func() map[string]Descriptor {
	m := make(map[string]Descriptor, len(catalog))
	for _, d := range catalog {
		m[d.Key()] = d
	}
	return m
}()

// Lookup finds a model by platform and model id. The boolean is false when absent.
func Lookup(platformID, modelID string) (Descriptor, bool) {
	d, ok := byKey[platformID+"/"+modelID]
	return d, ok
}

// LookupKey finds a model by its composite "platform/model" key.
// Model ids may themselves contain slashes, so only the first one separates the platform.
func LookupKey(key string) (Descriptor, bool) {
	platformID, modelID, found := strings.Cut(key, "/")
	if !found || platformID == "" || modelID == "" {
		return Descriptor{}, false
	}
	return Lookup(platformID, modelID)
}

// All returns a copy of the catalog
func All() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}
