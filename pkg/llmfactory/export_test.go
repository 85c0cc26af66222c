package llmfactory

// ResetDefault drops the default Factory.
func ResetDefault() {
	defaultLock.Lock()
	defer defaultLock.Unlock()
	defaultFactory = nil
}
