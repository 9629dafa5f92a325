package service

import (
	"strings"

	"github.com/enterprise-hub/account-service/internal/core/domain"
)

// AdminAllowList holds the emails that are granted ADMIN on registration.
type AdminAllowList map[string]struct{}

// NewAdminAllowList normalises emails to trimmed lower case and drops blanks.
func NewAdminAllowList(emails []string) AdminAllowList {
	l := make(AdminAllowList, len(emails))
	for _, e := range emails {
		e = normalizeEmail(e)
		if e == "" {
			continue
		}
		l[e] = struct{}{}
	}
	return l
}

// Contains reports whether email is on the list, ignoring case.
func (l AdminAllowList) Contains(email string) bool {
	_, ok := l[normalizeEmail(email)]
	return ok
}

// RoleFor returns the role a newly registered email receives.
func (l AdminAllowList) RoleFor(email string) string {
	if l.Contains(email) {
		return domain.RoleAdmin
	}
	return domain.RoleStudentL1
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
