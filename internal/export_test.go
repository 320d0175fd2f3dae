package internal

// SetTargets 直接替換對局的目標
func SetTargets(s *Session, targets []Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append([]Target(nil), targets...)
}
