package profiles

import (
	"time"

	"github.com/google/uuid"
)

// Profile mirrors the `profiles` table plus the received vouch count.
type Profile struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`

	IsVouched bool `json:"is_vouched"`
	IsNDA     bool `json:"is_nda"`
	IsStaff   bool `json:"is_staff"`
	CanVouch  bool `json:"can_vouch"`

	VouchesReceived int `json:"vouches_received"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Profile) Staff() bool     { return p.IsStaff }
func (p *Profile) NDAMember() bool { return p.IsNDA }
func (p *Profile) Vouched() bool   { return p.IsVouched }

// NewProfile is the input of Store.Create.
type NewProfile struct {
	Username string
	Email    string
	FullName string
	IsStaff  bool
}
