// Package remote implements the Remote Build Coordinator: submission to
// Copr, the persistent YAML state file keyed by BuildKey, and the
// state-machine for (re)joining an in-flight or completed remote build.
// Grounded on original_source/src/main.rs's CoprStateFile/build_with_copr/
// wait_for_copr_build.
package remote

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Status is the remote build's lifecycle state, as persisted in the state
// file.
type Status string

const (
	StatusSubmitted  Status = "Submitted"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// BuildState is one entry of the state file.
type BuildState struct {
	BuildKey string `yaml:"build_key"`
	BuildID  uint64 `yaml:"build_id"`
	Status   Status `yaml:"status"`
}

type stateFile struct {
	Builds map[string]BuildState `yaml:"builds"`
}

// StateStore is the sole cross-run authority for remote build identity. A
// single mutex guards every read-modify-write cycle, per the base spec's
// §5 "remote-state YAML file is protected by a process-wide mutex".
type StateStore struct {
	path string
	mu   sync.Mutex
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) load() (stateFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return stateFile{Builds: map[string]BuildState{}}, nil
	}
	if err != nil {
		return stateFile{}, fmt.Errorf("reading state file %s: %w", s.path, err)
	}
	var sf stateFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return stateFile{}, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	if sf.Builds == nil {
		sf.Builds = map[string]BuildState{}
	}
	return sf, nil
}

func (s *StateStore) save(sf stateFile) error {
	data, err := yaml.Marshal(&sf)
	if err != nil {
		return fmt.Errorf("marshaling state file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing state file %s: %w", s.path, err)
	}
	return nil
}

// Get returns the current state for a build key, or ok=false if absent.
func (s *StateStore) Get(buildKey string) (BuildState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.load()
	if err != nil {
		return BuildState{}, false, err
	}
	bs, ok := sf.Builds[buildKey]
	return bs, ok, nil
}

// Set writes one build's state, replacing any prior entry, under the
// store's mutex — a whole-file load, mutate, save cycle.
func (s *StateStore) Set(bs BuildState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.load()
	if err != nil {
		return err
	}
	sf.Builds[bs.BuildKey] = bs
	return s.save(sf)
}

// SetStatus updates only the status field of an existing entry.
func (s *StateStore) SetStatus(buildKey string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sf, err := s.load()
	if err != nil {
		return err
	}
	bs, ok := sf.Builds[buildKey]
	if !ok {
		return fmt.Errorf("no state entry for build %q", buildKey)
	}
	bs.Status = status
	sf.Builds[buildKey] = bs
	return s.save(sf)
}
