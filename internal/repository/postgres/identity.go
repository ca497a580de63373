package postgres

// IdentityRepo composes VisitorRepo and SessionRepo into the single
// identity.Repository the identity service expects, since the two
// concerns live in separate tables and separate repo types.
type IdentityRepo struct {
	*VisitorRepo
	*SessionRepo
}

// NewIdentityRepo wires the two tables' repos into one identity.Repository.
func NewIdentityRepo(visitors *VisitorRepo, sessions *SessionRepo) *IdentityRepo {
	return &IdentityRepo{VisitorRepo: visitors, SessionRepo: sessions}
}
