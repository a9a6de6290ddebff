package models

// OperatorRole represents the role of a facility operator
type OperatorRole string

const (
	OperatorRoleSuperAdmin   OperatorRole = "super_admin"
	OperatorRoleAdmin        OperatorRole = "admin"
	OperatorRoleReceptionist OperatorRole = "receptionist"
)

// roleRank 角色能力等级，高级角色覆盖低级角色的全部能力
var roleRank = map[OperatorRole]int{
	OperatorRoleReceptionist: 1,
	OperatorRoleAdmin:        2,
	OperatorRoleSuperAdmin:   3,
}

// Operator represents a facility-side operator account
type Operator struct {
	BaseModel
	Username string       `gorm:"type:varchar(50);unique;not null" json:"username"`
	Password string       `gorm:"type:varchar(100);not null" json:"-"` // bcrypt哈希
	Role     OperatorRole `gorm:"type:varchar(20);default:'receptionist'" json:"role"`
	Phone    string       `gorm:"type:varchar(15)" json:"phone,omitempty"`
}

// HasRole 能力检查：判断操作员是否具备所要求角色的能力
func (o *Operator) HasRole(required OperatorRole) bool {
	return roleRank[o.Role] >= roleRank[required]
}
