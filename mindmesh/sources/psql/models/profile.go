package models

// Profile is the public profile row kept by the hosted auth service. This
// backend only reads it to address the user by name.
type Profile struct {
	ID       string  `json:"id" gorm:"type:varchar(255);primaryKey"`
	Username *string `json:"username,omitempty" gorm:"type:varchar(255)"`
	FullName *string `json:"full_name,omitempty" gorm:"type:varchar(255)"`
}

func (Profile) TableName() string {
	return "profiles"
}

// DisplayName prefers the full name, then the username, then "User".
func (p *Profile) DisplayName() string {
	if p == nil {
		return "User"
	}
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	if p.Username != nil && *p.Username != "" {
		return *p.Username
	}
	return "User"
}
