// Package runlog records what each digest or sync run did as a YAML file
// under the runs directory.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/docsync/internal/digest"
	"github.com/KaramelBytes/docsync/internal/utils"
)

// Record is one run's report.
type Record struct {
	ID        string         `yaml:"id"`
	Command   string         `yaml:"command"`
	StartedAt time.Time      `yaml:"started_at"`
	Duration  string         `yaml:"duration,omitempty"`
	Model     string         `yaml:"model"`
	Options   digest.Options `yaml:"options"`
	Report    digest.Report  `yaml:"report"`
	Written   []string       `yaml:"written,omitempty"`
	Notes     string         `yaml:"notes,omitempty"`
	DryRun    bool           `yaml:"dry_run,omitempty"`
}

// New starts a record with a fresh run id.
func New(command, model string, opts digest.Options) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Command:   command,
		StartedAt: time.Now().UTC(),
		Model:     model,
		Options:   opts,
	}
}

// Finish stamps the elapsed time.
func (r *Record) Finish() {
	r.Duration = time.Since(r.StartedAt).Round(time.Millisecond).String()
}

// Save writes the record to dir/<id>.yaml and returns the path.
func (r *Record) Save(dir string) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create runs dir: %w", err)
	}
	b, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal run record: %w", err)
	}
	p := filepath.Join(dir, r.ID+".yaml")
	if err := utils.SafeWriteFile(p, b); err != nil {
		return "", err
	}
	return p, nil
}

// Load reads a record written by Save.
func Load(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parse run record %s: %w", path, err)
	}
	return &r, nil
}

// List returns the records in dir, newest first. Unreadable files are skipped.
func List(dir string) ([]*Record, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		r, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
