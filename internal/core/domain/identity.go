package domain

import "strconv"

// Identity is an owning actor under whose id backups are filed.
type Identity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// String returns "Name (id)".
func (i Identity) String() string {
	return i.Name + " (" + strconv.FormatInt(i.ID, 10) + ")"
}

// Viewpoint identifies whoever issued a request that may refer to
// "the grid I am looking at". IdentityID is the viewer's identity.
type Viewpoint struct {
	IdentityID int64 `json:"identity_id"`
}
