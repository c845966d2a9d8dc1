package api

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// SizeUnknown indicates the byte size was not present in the API response.
const SizeUnknown = -1

// FileRecord is one stored file as known to the client.
// Fields are normalized from the backend response; callers never see raw API data.
type FileRecord struct {
	ID          string    // server-assigned, opaque
	Name        string    // NFC-normalized display name
	Size        int64     // SizeUnknown if not present
	CreatedAt   time.Time // zero if not present
	ContentType string
	Locator     string // download reference when the listing embeds one; NEVER log
}

// HasSize reports whether the backend reported a byte size.
func (f *FileRecord) HasSize() bool {
	return f.Size != SizeUnknown
}

// User is the account profile returned by /auth/me and /user/me.
type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Location string `json:"location,omitempty" validate:"max=200"`
	Bio      string `json:"bio,omitempty" validate:"max=2000"`
	JoinDate string `json:"joinDate,omitempty"`
}

// RegisterRequest carries the fields /auth/register accepts.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

var validate = validator.New()

// Validate checks the request against its field rules.
func (r *RegisterRequest) Validate() error {
	return validate.Struct(r)
}

// Validate checks profile fields before an update is sent.
func (u *User) Validate() error {
	return validate.Struct(u)
}
