// Package plan turns a digest bundle into proposed file changes and writes
// the permitted subset of them to disk.
package plan

// File is one proposed file: a relative path and its full content.
type File struct {
	Path    string `json:"path" yaml:"path"`
	Content string `json:"content" yaml:"content"`
}

// ChangePlan is the synthesizer's output. A plan that could not be parsed
// carries no files and the raw reply in Notes.
type ChangePlan struct {
	Files []File `json:"files" yaml:"files"`
	Notes string `json:"notes" yaml:"notes"`
}
