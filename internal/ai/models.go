package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// ModelInfo is catalog metadata used for dry-run cost estimates and for
// warning when a window will not fit a model's context.
type ModelInfo struct {
	Name          string  `json:"name" yaml:"name"`
	ContextTokens int     `json:"context_tokens" yaml:"context_tokens"`
	InputPerK     float64 `json:"input_per_k" yaml:"input_per_k"`   // USD per 1K input tokens
	OutputPerK    float64 `json:"output_per_k" yaml:"output_per_k"` // USD per 1K output tokens
}

// Prices are indicative; override them with a catalog file.
var builtinModels = []ModelInfo{
	{Name: "openai/gpt-4.1-mini", ContextTokens: 128000, InputPerK: 0.0004, OutputPerK: 0.0016},
	{Name: "openai/gpt-4.1", ContextTokens: 128000, InputPerK: 0.002, OutputPerK: 0.008},
	{Name: "openai/gpt-4o-mini", ContextTokens: 128000, InputPerK: 0.00015, OutputPerK: 0.0006},
	{Name: "anthropic/claude-3.5-haiku", ContextTokens: 200000, InputPerK: 0.0008, OutputPerK: 0.004},
	{Name: "google/gemini-1.5-flash", ContextTokens: 1000000, InputPerK: 0.000075, OutputPerK: 0.0003},
	{Name: "meta-llama/llama-3.1-8b-instruct", ContextTokens: 131072},
	{Name: "llama3.1:8b", ContextTokens: 8192},
	{Name: "qwen2.5:7b-instruct", ContextTokens: 32768},
	{Name: "mistral-nemo:latest", ContextTokens: 8192},
}

var (
	catalogMu sync.RWMutex
	catalog   = func() map[string]ModelInfo {
		m := make(map[string]ModelInfo, len(builtinModels))
		for _, mi := range builtinModels {
			m[mi.Name] = mi
		}
		return m
	}()
)

// LookupModel returns catalog metadata for name.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := catalog[name]
	return mi, ok
}

// EstimateCostUSD estimates the cost of a call. Unknown models return ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	return float64(promptTokens)/1000*mi.InputPerK + float64(completionTokens)/1000*mi.OutputPerK, true
}

// LoadCatalogFromJSON reads a {"model": ModelInfo} object from path.
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]ModelInfo
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
			m[k] = v
		}
	}
	return m, nil
}

// MergeCatalog adds or replaces entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		catalog[k] = v
	}
}

// Catalog returns the current catalog sorted by model name.
func Catalog() []ModelInfo {
	catalogMu.RLock()
	out := make([]ModelInfo, 0, len(catalog))
	for _, v := range catalog {
		out = append(out, v)
	}
	catalogMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
