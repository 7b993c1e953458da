package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential is everything needed to act as one account on one instance.
type Credential struct {
	Instance     string    `yaml:"instance"`
	ClientID     string    `yaml:"client_id"`
	ClientSecret string    `yaml:"client_secret"`
	AccessToken  string    `yaml:"access_token"`
	CreatedAt    time.Time `yaml:"created_at"`
}

// credentialFile is the on-disk document: credentials keyed by instance.
type credentialFile struct {
	Credentials map[string]Credential `yaml:"credentials"`
}

// FileStore persists credentials to a YAML file with owner-only
// permissions. Safe for concurrent use within one process.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The file is
// created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the credential stored for an instance, or an error when the
// instance is unknown.
func (s *FileStore) Load(instance string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	cred, ok := doc.Credentials[instance]
	if !ok {
		return nil, fmt.Errorf("auth: no stored credential for %s", instance)
	}
	return &cred, nil
}

// Save writes or replaces the credential for cred.Instance.
func (s *FileStore) Save(cred Credential) error {
	if cred.Instance == "" {
		return fmt.Errorf("auth: credential has no instance")
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if doc.Credentials == nil {
		doc.Credentials = make(map[string]Credential)
	}
	doc.Credentials[cred.Instance] = cred
	return s.write(doc)
}

// Delete removes the credential for an instance. Deleting an unknown
// instance is not an error.
func (s *FileStore) Delete(instance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := doc.Credentials[instance]; !ok {
		return nil
	}
	delete(doc.Credentials, instance)
	return s.write(doc)
}

func (s *FileStore) read() (*credentialFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &credentialFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: reading credential file: %w", err)
	}

	var doc credentialFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("auth: parsing credential file: %w", err)
	}
	return &doc, nil
}

func (s *FileStore) write(doc *credentialFile) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("auth: encoding credential file: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("auth: creating credential directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("auth: writing credential file: %w", err)
	}
	return nil
}
