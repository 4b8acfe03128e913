// Package policystore provides file-based persistence for named security
// policies. Each policy is one YAML document under the store directory.
package policystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/ports"
	"gopkg.in/yaml.v3"
)

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	dir      string      // Directory holding policy files
	dirPerm  os.FileMode // Permission for created directories
	filePerm os.FileMode // Permission for policy files
}

func defaultFileStoreConfig() fileStoreConfig {
	return fileStoreConfig{
		dir:      filepath.Join(os.Getenv("HOME"), ".warden", "policies"),
		dirPerm:  0o755,
		filePerm: 0o600, // Policies name grant surfaces; user-only by default
	}
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithDir sets the directory holding policy files.
func WithDir(dir string) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dir = dir
	}
}

// WithFilePermissions sets the file permissions for policy files.
// Default is 0o600 (user-only). Use with caution.
func WithFilePermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.filePerm = perm
	}
}

// WithDirPermissions sets the permissions for the store directory.
// Default is 0o755.
func WithDirPermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dirPerm = perm
	}
}

// FileStore provides file-based persistence for security policies.
type FileStore struct {
	config fileStoreConfig
}

// NewFileStore creates a new FileStore with the given options.
func NewFileStore(opts ...FileStoreOption) ports.PolicyStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg}
}

// Load retrieves a policy by name.
func (s *FileStore) Load(name string) (entities.SecurityPolicy, error) {
	var pol entities.SecurityPolicy

	path, err := s.policyPath(name)
	if err != nil {
		return pol, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return pol, fmt.Errorf("policy %q not found", name)
	}
	if err != nil {
		return pol, fmt.Errorf("failed to read policy store: %w", err)
	}

	if err := yaml.Unmarshal(data, &pol); err != nil {
		return pol, fmt.Errorf("failed to parse policy %q: %w", name, err)
	}
	if pol.Name == "" {
		pol.Name = name
	}
	return pol, nil
}

// Save persists the policy under its name, overwriting any previous version.
func (s *FileStore) Save(pol entities.SecurityPolicy) error {
	path, err := s.policyPath(pol.Name)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(pol)
	if err != nil {
		return fmt.Errorf("failed to marshal policy %q: %w", pol.Name, err)
	}

	if err := os.MkdirAll(s.config.dir, s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create policy store directory: %w", err)
	}

	if err := os.WriteFile(path, data, s.config.filePerm); err != nil {
		return fmt.Errorf("failed to write policy %q: %w", pol.Name, err)
	}
	return nil
}

// Names lists the stored policy names in sorted order.
func (s *FileStore) Names() ([]string, error) {
	entries, err := os.ReadDir(s.config.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list policy store: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// Dir returns the path to the backing directory.
func (s *FileStore) Dir() string {
	return s.config.dir
}

// policyPath validates the name and maps it to a file path. Names containing
// path separators would escape the store directory.
func (s *FileStore) policyPath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("policy name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid policy name %q", name)
	}
	return filepath.Join(s.config.dir, name+".yaml"), nil
}
