package store

// CheckInvariants exposes the structural check to the external test package.
func (s *Store) CheckInvariants() error { return s.checkInvariants() }
