// Package policy implements the capability enforcement engine: pure,
// deterministic checks of runtime requests against a grant set. All audit
// emission and logging happens in the caller; the enforcer only decides.
package policy

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/warden-run/warden/domain/entities"
	"github.com/warden-run/warden/domain/ports"
)

// enforcerConfig holds configuration for the Enforcer.
type enforcerConfig struct {
	cwd             string // Working directory for relative path resolution
	resolveSymlinks bool   // Whether to resolve symlinks before matching
}

func defaultEnforcerConfig() enforcerConfig {
	return enforcerConfig{
		cwd:             "",
		resolveSymlinks: true, // Secure default
	}
}

// Option configures the Enforcer.
type Option func(*enforcerConfig)

// WithWorkingDirectory sets the working directory for relative path resolution.
func WithWorkingDirectory(cwd string) Option {
	return func(c *enforcerConfig) {
		c.cwd = cwd
	}
}

// WithSymlinkResolution enables/disables symlink resolution.
// Default is true (secure). Disable only for testing.
func WithSymlinkResolution(enabled bool) Option {
	return func(c *enforcerConfig) {
		c.resolveSymlinks = enabled
	}
}

// Enforcer implements ports.Enforcer with stateless checks over a compiled
// grant-set cache.
type Enforcer struct {
	config enforcerConfig
	cache  sync.Map // key: *entities.GrantSet, value: *compiledGrantSet
}

type compiledGrantSet struct {
	fsRead     []string
	fsWrite    []string
	connect    []compiledNetworkRule
	listen     []string
	envRead    []string
	envWrite   []string
	customTags []string
}

type compiledNetworkRule struct {
	hosts []string
	ports []portRange
}

type portRange struct {
	min, max int
}

// NewEnforcer creates a new Enforcer.
func NewEnforcer(opts ...Option) *Enforcer {
	cfg := defaultEnforcerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Enforcer{config: cfg}
}

var _ ports.Enforcer = (*Enforcer)(nil)

func (e *Enforcer) getCompiled(grants *entities.GrantSet) *compiledGrantSet {
	if grants == nil {
		return nil
	}
	if v, ok := e.cache.Load(grants); ok {
		return v.(*compiledGrantSet)
	}

	c := &compiledGrantSet{}

	if grants.FS != nil {
		for _, rule := range grants.FS.Rules {
			for _, r := range rule.Read {
				if doublestar.ValidatePattern(r) {
					c.fsRead = append(c.fsRead, r)
				}
			}
			for _, w := range rule.Write {
				if doublestar.ValidatePattern(w) {
					c.fsWrite = append(c.fsWrite, w)
				}
			}
		}
	}

	if grants.Network != nil {
		for _, rule := range grants.Network.Connect {
			cr := compiledNetworkRule{}
			for _, h := range rule.Hosts {
				if doublestar.ValidatePattern(h) {
					cr.hosts = append(cr.hosts, h)
				}
			}
			for _, portStr := range rule.Ports {
				if portStr == "*" {
					cr.ports = append(cr.ports, portRange{0, 65535})
					continue
				}
				if strings.Contains(portStr, "-") {
					parts := strings.Split(portStr, "-")
					if len(parts) == 2 {
						minPort, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
						maxPort, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
						cr.ports = append(cr.ports, portRange{minPort, maxPort})
					}
				} else {
					val, _ := strconv.Atoi(strings.TrimSpace(portStr))
					cr.ports = append(cr.ports, portRange{val, val})
				}
			}
			c.connect = append(c.connect, cr)
		}
		for _, bind := range grants.Network.Listen {
			if doublestar.ValidatePattern(bind) {
				c.listen = append(c.listen, bind)
			}
		}
	}

	if grants.Env != nil {
		for _, v := range grants.Env.Read {
			if doublestar.ValidatePattern(v) {
				c.envRead = append(c.envRead, v)
			}
		}
		for _, v := range grants.Env.Write {
			if doublestar.ValidatePattern(v) {
				c.envWrite = append(c.envWrite, v)
			}
		}
	}

	if grants.Custom != nil {
		for _, tag := range grants.Custom.Tags {
			if doublestar.ValidatePattern(tag) {
				c.customTags = append(c.customTags, tag)
			}
		}
	}

	e.cache.Store(grants, c)
	return c
}

// CheckFileSystem matches the request path against the grant set's read or
// write patterns. Relative paths resolve against the configured working
// directory and are denied without one.
func (e *Enforcer) CheckFileSystem(req entities.FileSystemRequest, grants *entities.GrantSet) ports.Decision {
	c := e.getCompiled(grants)
	if c == nil {
		return ports.Deny("fs", req.Operation, req.Path, "no grants")
	}

	path := filepath.Clean(req.Path)
	if !filepath.IsAbs(path) {
		if e.config.cwd == "" {
			return ports.Deny("fs", req.Operation, req.Path, "relative path without working directory")
		}
		path = filepath.Join(e.config.cwd, path)
	}

	// Resolve symlinks to prevent traversal through links out of granted trees.
	if e.config.resolveSymlinks {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			path = resolved
		}
	}

	var patterns []string
	switch req.Operation {
	case "read":
		patterns = c.fsRead
	case "write":
		patterns = c.fsWrite
	default:
		return ports.Deny("fs", req.Operation, req.Path, fmt.Sprintf("unknown operation %q", req.Operation))
	}

	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return ports.Allow("fs", req.Operation, req.Path)
		}
	}

	return ports.Deny("fs", req.Operation, req.Path, "path not covered by any grant")
}

// CheckNetwork matches an outbound connection request. A request matches a
// rule only when both its host and port are covered by that same rule; an
// explicit port grant satisfies that port, a wildcard port grant satisfies
// any port on the rule's hosts.
func (e *Enforcer) CheckNetwork(req entities.NetworkRequest, grants *entities.GrantSet) ports.Decision {
	descriptor := fmt.Sprintf("%s:%d", req.Host, req.Port)
	c := e.getCompiled(grants)
	if c == nil {
		return ports.Deny("network", "connect", descriptor, "no grants")
	}

	for _, rule := range c.connect {
		hostMatch := false
		for _, pattern := range rule.hosts {
			if matched, _ := doublestar.Match(pattern, req.Host); matched {
				hostMatch = true
				break
			}
		}

		portMatch := false
		for _, pr := range rule.ports {
			if req.Port >= pr.min && req.Port <= pr.max {
				portMatch = true
				break
			}
		}

		if hostMatch && portMatch {
			return ports.Allow("network", "connect", descriptor)
		}
	}

	return ports.Deny("network", "connect", descriptor, "host/port not covered by any grant")
}

// CheckListen matches a bind request against the granted listen addresses.
func (e *Enforcer) CheckListen(req entities.ListenRequest, grants *entities.GrantSet) ports.Decision {
	c := e.getCompiled(grants)
	if c == nil {
		return ports.Deny("network", "listen", req.BindAddress, "no grants")
	}

	for _, pattern := range c.listen {
		if matched, _ := doublestar.Match(pattern, req.BindAddress); matched {
			return ports.Allow("network", "listen", req.BindAddress)
		}
	}

	return ports.Deny("network", "listen", req.BindAddress, "bind address not covered by any grant")
}

// CheckEnvironment matches a variable access against the read or write
// pattern lists.
func (e *Enforcer) CheckEnvironment(req entities.EnvironmentRequest, grants *entities.GrantSet) ports.Decision {
	c := e.getCompiled(grants)
	if c == nil {
		return ports.Deny("env", req.Operation, req.Variable, "no grants")
	}

	var patterns []string
	switch req.Operation {
	case "read":
		patterns = c.envRead
	case "write":
		patterns = c.envWrite
	default:
		return ports.Deny("env", req.Operation, req.Variable, fmt.Sprintf("unknown operation %q", req.Operation))
	}

	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, req.Variable); matched {
			return ports.Allow("env", req.Operation, req.Variable)
		}
	}

	return ports.Deny("env", req.Operation, req.Variable, "variable not covered by any grant")
}

// CheckCustom matches a host-defined capability tag.
func (e *Enforcer) CheckCustom(req entities.CustomRequest, grants *entities.GrantSet) ports.Decision {
	c := e.getCompiled(grants)
	if c == nil {
		return ports.Deny("custom", "use", req.Tag, "no grants")
	}

	for _, pattern := range c.customTags {
		if matched, _ := doublestar.Match(pattern, req.Tag); matched {
			return ports.Allow("custom", "use", req.Tag)
		}
	}

	return ports.Deny("custom", "use", req.Tag, "tag not covered by any grant")
}
