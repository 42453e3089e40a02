package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidEnvironment is returned when a deploy names an environment the
// service does not have enabled.
var ErrInvalidEnvironment = errors.New("environment not enabled for service")

// DefaultEnvironment is used when a service has no enabled environments.
const DefaultEnvironment = "dev"

// Service is a registered service, the primary action target. The
// provision status fields are the denormalized view of the latest
// provisioning outcome and are written only during action processing.
type Service struct {
	ID                   string
	Name                 string
	RepoURL              string
	OwnerTeam            string
	Runtime              string
	Tier                 string
	Environments         []string
	Tenant               string
	ObservabilityEnabled bool
	ProvisionStatus      ActionStatus
	ProvisionDetail      string
	UpdatedAt            time.Time
}

func (s Service) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("service id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("service name is required")
	}
	if strings.TrimSpace(s.RepoURL) == "" {
		return errors.New("repo url is required")
	}
	if strings.TrimSpace(s.OwnerTeam) == "" {
		return errors.New("owner team is required")
	}
	if strings.TrimSpace(s.Runtime) == "" {
		return errors.New("runtime is required")
	}
	if strings.TrimSpace(s.Tier) == "" {
		return errors.New("tier is required")
	}
	if strings.TrimSpace(s.Tenant) == "" {
		return errors.New("tenant is required")
	}
	return nil
}

// ResolveEnvironment picks the environment for a deploy request: an
// explicit environment must be enabled, an empty request falls back to the
// first enabled environment, and a service with none enabled deploys to
// DefaultEnvironment.
func (s Service) ResolveEnvironment(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		if len(s.Environments) > 0 {
			return s.Environments[0], nil
		}
		return DefaultEnvironment, nil
	}
	for _, env := range s.Environments {
		if env == requested {
			return requested, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEnvironment, requested)
}

// Tenant is the provisioning target shared by every service registered
// under the same tenant name.
type Tenant struct {
	ID        string
	Name      string
	Status    ActionStatus
	Detail    string
	Namespace string
	RDSSchema string
	S3Bucket  string
	UpdatedAt time.Time
}

func (t Tenant) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("tenant id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("tenant name is required")
	}
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify reduces a tenant name to a resource-name-safe slug.
func Slugify(value string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(value), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "tenant"
	}
	return slug
}

// NewTenant derives the tenant's infrastructure resource names from its
// slug. The names are handed to the workflow engine; the engine owns
// creating the resources behind them.
func NewTenant(id, name, bucketPrefix string) Tenant {
	slug := Slugify(name)
	return Tenant{
		ID:        id,
		Name:      name,
		Status:    StatusNotRequested,
		Detail:    "",
		Namespace: "tenant-" + slug,
		RDSSchema: "tenant_" + slug,
		S3Bucket:  bucketPrefix + "-" + slug,
	}
}
