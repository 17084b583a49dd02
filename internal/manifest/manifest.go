// Package manifest records what a production build produced and from which
// source revision.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
)

// FileName is written at the root of the distribution directory.
const FileName = "build-manifest.json"

// BuildManifest is a complete record of one build.
type BuildManifest struct {
	ID         string       `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	Source     Source       `json:"source"`
	Tasks      []TaskResult `json:"tasks"`
	Outputs    Outputs      `json:"outputs"`
	Status     string       `json:"status"`
	DurationMS int64        `json:"duration_ms"`
}

// Source identifies the revision the build was made from.
type Source struct {
	Root   string `json:"root"`
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// TaskResult is the outcome of one task inside the build.
type TaskResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Files  int    `json:"files"`
}

// Outputs lists every packaged artifact with its SHA-256.
type Outputs struct {
	ContentHash    string            `json:"content_hash"`
	ArtifactHashes map[string]string `json:"artifact_hashes"`
}

// AddArtifact records the hash of a packaged file.
func (m *BuildManifest) AddArtifact(rel string, data []byte) {
	if m.Outputs.ArtifactHashes == nil {
		m.Outputs.ArtifactHashes = make(map[string]string)
	}
	sum := sha256.Sum256(data)
	m.Outputs.ArtifactHashes[rel] = hex.EncodeToString(sum[:])
}

// Seal computes the content hash over all artifacts.
func (m *BuildManifest) Seal() {
	m.Outputs.ContentHash = m.Hash()
}

// Hash is a deterministic digest of artifact paths and hashes. Two builds with
// identical output have the same hash regardless of ID or time.
func (m *BuildManifest) Hash() string {
	paths := make([]string, 0, len(m.Outputs.ArtifactHashes))
	for p := range m.Outputs.ArtifactHashes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	h := sha256.New()
	for _, p := range paths {
		fmt.Fprintf(h, "%s\x00%s\n", p, m.Outputs.ArtifactHashes[p])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ToJSON serializes the manifest to JSON.
func (m *BuildManifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a manifest from JSON.
func FromJSON(data []byte) (*BuildManifest, error) {
	var m BuildManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// ReadSource resolves the git HEAD of the repository containing dir. A
// directory outside any repository yields a Source with only Root set.
func ReadSource(dir string) (Source, error) {
	src := Source{Root: dir}
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return src, nil
	}
	if err != nil {
		return src, fmt.Errorf("open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		// An empty repository has no HEAD yet.
		return src, nil //nolint:nilerr // unborn HEAD is not an error for a manifest
	}
	src.Commit = head.Hash().String()
	if head.Name().IsBranch() {
		src.Branch = head.Name().Short()
	}
	return src, nil
}
