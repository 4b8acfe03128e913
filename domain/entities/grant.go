package entities

// GrantSet is a structured collection of rules representing every capability
// granted to a guest. Rule slices preserve insertion order for audit display;
// matching is order-independent.
type GrantSet struct {
	FS      *FileSystemCapability  `json:"fs,omitempty" yaml:"fs,omitempty"`
	Network *NetworkCapability     `json:"network,omitempty" yaml:"network,omitempty"`
	Env     *EnvironmentCapability `json:"env,omitempty" yaml:"env,omitempty"`
	Custom  *CustomCapability      `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// IsEmpty returns true if no capabilities are present.
func (g *GrantSet) IsEmpty() bool {
	if g == nil {
		return true
	}
	if g.FS != nil && len(g.FS.Rules) > 0 {
		return false
	}
	if g.Network != nil && (len(g.Network.Connect) > 0 || len(g.Network.Listen) > 0) {
		return false
	}
	if g.Env != nil && (len(g.Env.Read) > 0 || len(g.Env.Write) > 0) {
		return false
	}
	if g.Custom != nil && len(g.Custom.Tags) > 0 {
		return false
	}
	return true
}

// Merge unions two grant sets, appending the other set's rules after g's own
// so audit display keeps grant order stable.
func (g *GrantSet) Merge(other *GrantSet) {
	if other == nil {
		return
	}
	if other.FS != nil && len(other.FS.Rules) > 0 {
		if g.FS == nil {
			g.FS = &FileSystemCapability{}
		}
		g.FS.Rules = append(g.FS.Rules, other.FS.Rules...)
	}
	if other.Network != nil {
		if len(other.Network.Connect) > 0 || len(other.Network.Listen) > 0 {
			if g.Network == nil {
				g.Network = &NetworkCapability{}
			}
			g.Network.Connect = append(g.Network.Connect, other.Network.Connect...)
			g.Network.Listen = append(g.Network.Listen, other.Network.Listen...)
		}
	}
	if other.Env != nil && (len(other.Env.Read) > 0 || len(other.Env.Write) > 0) {
		if g.Env == nil {
			g.Env = &EnvironmentCapability{}
		}
		g.Env.Read = append(g.Env.Read, other.Env.Read...)
		g.Env.Write = append(g.Env.Write, other.Env.Write...)
	}
	if other.Custom != nil && len(other.Custom.Tags) > 0 {
		if g.Custom == nil {
			g.Custom = &CustomCapability{}
		}
		g.Custom.Tags = append(g.Custom.Tags, other.Custom.Tags...)
	}
}

// Clone returns a deep copy of the GrantSet. Grants are immutable once handed
// to a tenant, so anything that wants to modify a set must clone it first.
func (g *GrantSet) Clone() *GrantSet {
	if g == nil {
		return nil
	}
	clone := &GrantSet{}
	if g.FS != nil {
		clone.FS = &FileSystemCapability{Rules: make([]FileSystemRule, len(g.FS.Rules))}
		for i, rule := range g.FS.Rules {
			clone.FS.Rules[i] = FileSystemRule{
				Read:  append([]string(nil), rule.Read...),
				Write: append([]string(nil), rule.Write...),
			}
		}
	}
	if g.Network != nil {
		clone.Network = &NetworkCapability{
			Connect: make([]NetworkRule, len(g.Network.Connect)),
			Listen:  append([]string(nil), g.Network.Listen...),
		}
		for i, rule := range g.Network.Connect {
			clone.Network.Connect[i] = NetworkRule{
				Hosts: append([]string(nil), rule.Hosts...),
				Ports: append([]string(nil), rule.Ports...),
			}
		}
	}
	if g.Env != nil {
		clone.Env = &EnvironmentCapability{
			Read:  append([]string(nil), g.Env.Read...),
			Write: append([]string(nil), g.Env.Write...),
		}
	}
	if g.Custom != nil {
		clone.Custom = &CustomCapability{Tags: append([]string(nil), g.Custom.Tags...)}
	}
	return clone
}
