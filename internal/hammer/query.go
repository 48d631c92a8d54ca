package hammer

import "time"

// StatusReport summarizes the current deployment and pending-transaction
// state for the `hammer status` command.
type StatusReport struct {
	Current       *Deployment
	PendingMarker *PendingMarker
}

// Status reports the current deployment and any outstanding pending
// marker, without acquiring the lock: it is read-only.
func (e *Engine) Status() (*StatusReport, error) {
	current, err := e.currentDeployment()
	if err != nil {
		return nil, err
	}
	marker, err := e.meta.ReadPendingMarker()
	if err != nil {
		return nil, ErrMetadataError("reading pending marker", err)
	}
	return &StatusReport{Current: current, PendingMarker: marker}, nil
}

// History rebuilds the deployment index from the authoritative on-disk
// metadata and returns every entry, newest first.
func (e *Engine) History() ([]*HistoryEntry, error) {
	deployments, err := e.listDeployments()
	if err != nil {
		return nil, err
	}
	current, err := e.currentName()
	if err != nil {
		return nil, err
	}

	entries := make([]*HistoryEntry, 0, len(deployments))
	for _, d := range deployments {
		created, err := time.Parse(time.RFC3339, d.Meta.Created)
		if err != nil {
			e.logger.Warn("deployment has unparseable created timestamp", "deployment", d.Name, "created", d.Meta.Created)
		}
		entries = append(entries, &HistoryEntry{
			Name:      d.Name,
			Created:   created,
			Action:    d.Meta.Action,
			Status:    d.Meta.Status,
			Parent:    d.Meta.Parent,
			IsCurrent: d.Name == current,
		})
	}

	if err := e.index.Rebuild(entries); err != nil {
		e.logger.Warn("failed to rebuild deployment index", "error", err)
		return reverse(entries), nil
	}
	newest, err := e.index.Newest()
	if err != nil {
		e.logger.Warn("failed to query deployment index, falling back to metadata", "error", err)
		return reverse(entries), nil
	}
	return newest, nil
}

func reverse(entries []*HistoryEntry) []*HistoryEntry {
	out := make([]*HistoryEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// CheckTransaction performs the first-boot reconciliation described in the
// design notes: if a pending marker exists and we appear to have booted
// into the deployment it names, the marker is cleared and that deployment
// is marked booted; if we booted into a different deployment (the
// fallback path), the marker is cleared and the deployment it named is
// marked broken.
func (e *Engine) CheckTransaction() error {
	marker, err := e.meta.ReadPendingMarker()
	if err != nil {
		return ErrMetadataError("reading pending marker", err)
	}
	if marker == nil {
		return nil
	}

	current, err := e.currentName()
	if err != nil {
		return err
	}

	pendingPath := e.deploymentPath(marker.Deployment)
	if current == marker.Deployment {
		if err := e.meta.SetStatusBooted(pendingPath); err != nil {
			return ErrMetadataError("marking deployment booted", err)
		}
		e.logger.Info("pending transaction confirmed booted", "deployment", marker.Deployment)
	} else {
		if err := e.meta.SetStatusBroken(pendingPath, "system fell back without booting this deployment"); err != nil {
			return ErrMetadataError("marking deployment broken", err)
		}
		e.logger.Warn("pending transaction did not boot, marked broken", "deployment", marker.Deployment, "booted", current)
	}

	return e.meta.ClearPendingMarker()
}

// Lock seals the current deployment and every nested subvolume read-only,
// refusing further mutation until Unlock is called.
func (e *Engine) Lock() error {
	current, err := e.currentDeployment()
	if err != nil {
		return err
	}
	if err := e.snapshots.SetReadOnlyRecursive(current.Path, true); err != nil {
		return ErrSnapshotError("locking current deployment", err)
	}
	e.logger.Info("locked current deployment", "deployment", current.Name)
	return nil
}

// Unlock is the inverse of Lock. Only the current deployment is ever
// targeted: historical deployments remain read-only permanently.
func (e *Engine) Unlock() error {
	current, err := e.currentDeployment()
	if err != nil {
		return err
	}
	if err := e.snapshots.SetReadOnlyRecursive(current.Path, false); err != nil {
		return ErrSnapshotError("unlocking current deployment", err)
	}
	e.logger.Info("unlocked current deployment", "deployment", current.Name)
	return nil
}
