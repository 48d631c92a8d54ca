package hammer

import (
	"fmt"
	"path/filepath"
)

// Switch makes target the current deployment without creating a new
// snapshot. If target is empty, the newest ready, booted or previous
// deployment other than the current one is chosen (the second-newest when
// current is the newest), matching the bare `hammer switch`
// CLI behavior resolved in the design notes. target is resolved to its
// basename only: a caller passing a full path is not taken to mean
// anything beyond the deployment it names.
func (e *Engine) Switch(target string) (*Deployment, error) {
	if err := e.lock.Acquire(); err != nil {
		return nil, ErrConcurrentOperation(err)
	}
	defer e.lock.Release()

	current, err := e.currentDeployment()
	if err != nil {
		return nil, err
	}

	var name string
	if target == "" {
		name, err = e.secondNewestOtherThan(current.Name)
		if err != nil {
			return nil, err
		}
	} else {
		name = filepath.Base(target)
	}

	if name == current.Name {
		return nil, ErrValidationFailed("target deployment is already current: " + name)
	}

	dest, err := e.loadDeployment(name)
	if err != nil {
		return nil, ErrValidationFailed("target deployment does not exist: " + name)
	}
	ro, err := e.snapshots.IsReadOnly(dest.Path)
	if err != nil {
		return nil, ErrSnapshotError("checking target deployment read-only state", err)
	}
	if !ro {
		return nil, ErrValidationFailed("target deployment is not sealed read-only: " + name)
	}

	if err := e.meta.UpdateMeta(current.Path, Metadata{Status: StatusPrevious, RollbackReason: "manual"}); err != nil {
		return nil, ErrMetadataError("marking outgoing deployment previous", err)
	}

	if err := e.publish(dest.Path); err != nil {
		return nil, err
	}

	if err := e.meta.SetStatusBooted(dest.Path); err != nil {
		return nil, ErrMetadataError("marking target deployment booted", err)
	}

	e.logger.Info("switched current deployment", "from", current.Name, "to", dest.Name)
	return e.loadDeployment(dest.Name)
}

// Rollback switches to the nth-newest deployment other than current,
// counting from 1 as the newest such deployment. It is a thin wrapper
// around Switch's underlying logic that additionally enforces that at
// least n qualifying deployments exist, per the design notes' guard.
func (e *Engine) Rollback(n int) (*Deployment, error) {
	if n < 1 {
		return nil, ErrValidationFailed("rollback count must be >= 1")
	}

	if err := e.lock.Acquire(); err != nil {
		return nil, ErrConcurrentOperation(err)
	}
	current, err := e.currentDeployment()
	if err != nil {
		e.lock.Release()
		return nil, err
	}

	others, err := e.readyOrBootedOtherThan(current.Name)
	if err != nil {
		e.lock.Release()
		return nil, err
	}
	if len(others) < n {
		e.lock.Release()
		return nil, ErrValidationFailed(fmt.Sprintf("not enough deployments to roll back %d step(s): have %d candidate(s)", n, len(others)))
	}
	target := others[n-1]
	e.lock.Release()

	return e.Switch(target.Name)
}

// secondNewestOtherThan returns the newest ready, booted or previous
// deployment other than exclude, matching bare-switch's "go back one step"
// semantics.
func (e *Engine) secondNewestOtherThan(exclude string) (string, error) {
	others, err := e.readyOrBootedOtherThan(exclude)
	if err != nil {
		return "", err
	}
	if len(others) == 0 {
		return "", ErrValidationFailed("no other deployment available to switch to")
	}
	return others[0].Name, nil
}

// readyOrBootedOtherThan returns every ready, booted or previous deployment
// other than exclude, newest first; broken deployments are left out.
func (e *Engine) readyOrBootedOtherThan(exclude string) ([]*Deployment, error) {
	deployments, err := e.listDeployments()
	if err != nil {
		return nil, err
	}
	var out []*Deployment
	for i := len(deployments) - 1; i >= 0; i-- {
		d := deployments[i]
		if d.Name == exclude {
			continue
		}
		if d.Meta.Status == StatusReady || d.Meta.Status == StatusBooted || d.Meta.Status == StatusPrevious {
			out = append(out, d)
		}
	}
	return out, nil
}
