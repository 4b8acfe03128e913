package ports

import "github.com/warden-run/warden/domain/entities"

// PolicyStore persists named security policies so tenant policies survive
// host restarts.
type PolicyStore interface {
	// Load retrieves a policy by name. Returns the zero policy and an error
	// if no policy with that name exists.
	Load(name string) (entities.SecurityPolicy, error)

	// Save persists the policy under its name, overwriting any previous
	// version.
	Save(policy entities.SecurityPolicy) error

	// Names lists the stored policy names.
	Names() ([]string, error)
}
