package app

// SetTokenSources replaces the certificate id and code generators.
func (s *CertificateService) SetTokenSources(newID, newCode func() (string, error)) {
	s.newID = newID
	s.newCode = newCode
}
