package models

// Principal roles. Authentication itself is an external collaborator; the
// core only consumes an already-verified identity plus role.
const (
	RoleBrand   = "brand"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

// Principal is the verified caller identity handed to every core operation.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Admin  bool   `json:"admin"`
}

// CanManageCampaign reports whether the principal may mutate the given
// campaign or decide its submissions.
func (p Principal) CanManageCampaign(c *Campaign) bool {
	if p.Admin || p.Role == RoleAdmin {
		return true
	}
	return p.Role == RoleBrand && c != nil && c.BrandID == p.UserID
}
