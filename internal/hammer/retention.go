package hammer

// Clean deletes the oldest deployments beyond the configured retention
// count, never deleting the current deployment, the deployment named by a
// pending marker (if one exists), or the newest keep deployments. keep
// defaults to cfg.RetentionKeep when 0.
func (e *Engine) Clean(keep int) ([]string, error) {
	if keep <= 0 {
		keep = e.cfg.RetentionKeep
	}

	if err := e.lock.Acquire(); err != nil {
		return nil, ErrConcurrentOperation(err)
	}
	defer e.lock.Release()

	deployments, err := e.listDeployments()
	if err != nil {
		return nil, err
	}

	current, err := e.currentName()
	if err != nil {
		return nil, err
	}

	protected := map[string]bool{current: true}
	if marker, err := e.meta.ReadPendingMarker(); err == nil && marker != nil {
		protected[marker.Deployment] = true
	}

	if len(deployments) <= keep {
		return nil, nil
	}

	candidates := deployments[:len(deployments)-keep]
	var removed []string
	for _, d := range candidates {
		if protected[d.Name] {
			continue
		}
		if err := e.snapshots.Delete(d.Path); err != nil {
			e.logger.Warn("failed to delete deployment during retention sweep", "deployment", d.Name, "error", err)
			continue
		}
		removed = append(removed, d.Name)
	}

	if len(removed) > 0 {
		if err := e.regenerateBootloaderAfterClean(); err != nil {
			e.logger.Warn("failed to regenerate bootloader fragment after retention sweep", "error", err)
		}
	}

	e.logger.Info("retention sweep complete", "removed", removed, "kept", keep)
	return removed, nil
}

// regenerateBootloaderAfterClean rebuilds the bootloader fragment against
// whichever deployment is current after a retention sweep removed entries.
func (e *Engine) regenerateBootloaderAfterClean() error {
	current, err := e.currentDeployment()
	if err != nil {
		return err
	}
	return e.regenerateBootloader(current.Path)
}
