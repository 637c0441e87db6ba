package model

type Role string

const (
	RoleUser    Role = "USER"
	RoleAdmin   Role = "ADMIN"
	RoleCourier Role = "COURIER"
)

// ストアの管理者と配送員は全件見える
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleCourier
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleCourier:
		return true
	}
	return false
}
