package service

import (
	"strings"
)

type RBACService struct{}

func NewRBACService() *RBACService { return &RBACService{} }

// HasPermission matches exactly or through a resource wildcard such as "special_access:*".
func (s *RBACService) HasPermission(permissions []string, required string) bool {
	required = strings.ToLower(strings.TrimSpace(required))
	resource, _, _ := strings.Cut(required, ":")
	for _, p := range permissions {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == required || p == "*" || p == resource+":*" {
			return true
		}
	}
	return false
}
