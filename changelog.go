package taskwire

// Apply folds a single change into a task list and returns the new list.
// The input slice is never mutated.
//
// Apply is idempotent for creates whose task ID is already present: a
// replayed create is a no-op rather than an error, so folding a changelog
// that was partially applied before a restart cannot duplicate tasks.
// Mutations of an unknown task ID are likewise no-ops locally; the server
// is the one that reports not-found.
func Apply(tasks []Task, change Change) []Task {
	switch change.Type {
	case ChangeCreate:
		for _, t := range tasks {
			if t.ID == change.TaskID {
				return tasks
			}
		}
		out := make([]Task, len(tasks), len(tasks)+1)
		copy(out, tasks)
		return append(out, Task{
			ID:        change.TaskID,
			Name:      change.TaskName,
			CreatedAt: change.CreatedAt,
		})

	case ChangeComplete:
		return mapTask(tasks, change.TaskID, func(t Task) Task {
			ts := change.CreatedAt
			t.CompletedAt = &ts
			return t
		})

	case ChangeUncomplete:
		return mapTask(tasks, change.TaskID, func(t Task) Task {
			t.CompletedAt = nil
			return t
		})

	case ChangeEdit:
		return mapTask(tasks, change.TaskID, func(t Task) Task {
			t.Name = change.TaskName
			ts := change.CreatedAt
			t.EditedAt = &ts
			return t
		})

	case ChangeDelete:
		out := make([]Task, 0, len(tasks))
		for _, t := range tasks {
			if t.ID != change.TaskID {
				out = append(out, t)
			}
		}
		return out
	}

	return tasks
}

// Fold replays changes in log order onto a baseline. It is used at startup
// to reconstruct the projection from a persisted changelog plus a fresh
// baseline, and whenever the log is rebuilt. Folding incrementally with
// Apply yields the same result as one Fold over the full log.
func Fold(baseline []Task, changes []Change) []Task {
	tasks := baseline
	for _, c := range changes {
		tasks = Apply(tasks, c)
	}
	return tasks
}

// Reconcile removes changes whose outcome settled (ok or duplicate) and
// annotates errored changes with their message, retaining them. Changes the
// status map does not mention are kept untouched; they were appended after
// the batch went out.
func Reconcile(changes []Change, status SyncStatus) []Change {
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		outcome, ok := status[c.ID]
		if !ok {
			out = append(out, c)
			continue
		}
		if outcome.Settled() {
			continue
		}
		c.LastError = outcome.Error
		out = append(out, c)
	}
	return out
}

// DiscardFailed removes every change carrying a sync error.
func DiscardFailed(changes []Change) []Change {
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if !c.Failed() {
			out = append(out, c)
		}
	}
	return out
}

// AnyFailed reports whether any change carries a sync error.
func AnyFailed(changes []Change) bool {
	for _, c := range changes {
		if c.Failed() {
			return true
		}
	}
	return false
}

func mapTask(tasks []Task, id string, fn func(Task) Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		if t.ID == id {
			out[i] = fn(t)
		} else {
			out[i] = t
		}
	}
	return out
}
