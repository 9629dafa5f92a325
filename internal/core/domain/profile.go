package domain

import "time"

// AccountStatus is the approval state that gates login.
type AccountStatus string

const (
	StatusPendingApproval AccountStatus = "PENDING_APPROVAL"
	StatusApproved        AccountStatus = "APPROVED"
	StatusRejected        AccountStatus = "REJECTED"
	StatusSuspended       AccountStatus = "SUSPENDED"
)

// Known reports whether s is one of the statuses an administrator may assign.
// Stores may still hold other values; those are carried through untouched.
func (s AccountStatus) Known() bool {
	switch s {
	case StatusPendingApproval, StatusApproved, StatusRejected, StatusSuspended:
		return true
	}
	return false
}

const (
	RoleAdmin     = "ADMIN"
	RoleStudentL1 = "STUDENT_L1"

	// RolePendingApproval is reported when an account has no membership yet.
	RolePendingApproval = "pending_approval"
)

// Profile is the application-owned record for a person, one per Account.
type Profile struct {
	ID            string        `json:"id"`
	Email         string        `json:"email"`
	FullName      string        `json:"full_name"`
	OrgID         string        `json:"org_id"`
	AccountStatus AccountStatus `json:"account_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Memberships   []Membership  `json:"memberships,omitempty"`
}

// Membership links a profile to an organization with a role.
type Membership struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role"`
	RoleName  string    `json:"role_name,omitempty"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// PrimaryMembership returns the membership flagged as primary. When none is
// flagged the first one is used, matching the store's ordering. It returns
// nil for a profile without memberships.
func (p *Profile) PrimaryMembership() *Membership {
	if p == nil || len(p.Memberships) == 0 {
		return nil
	}
	for i := range p.Memberships {
		if p.Memberships[i].IsPrimary {
			return &p.Memberships[i]
		}
	}
	return &p.Memberships[0]
}

// RoleKey returns the primary membership's role, or RolePendingApproval.
func (p *Profile) RoleKey() string {
	m := p.PrimaryMembership()
	if m == nil || m.Role == "" {
		return RolePendingApproval
	}
	return m.Role
}

// Approved reports whether the profile may complete login.
func (p *Profile) Approved() bool {
	return p != nil && p.AccountStatus == StatusApproved
}
