package plan

// Reconciler compares planned actions with dispatcher records.
type Reconciler struct {
	catalog *Catalog
	tools   map[string]bool
}

// NewReconciler creates a reconciler counting records of the named
// tools toward plan completion.
func NewReconciler(catalog *Catalog, tools []string) *Reconciler {
	r := &Reconciler{catalog: catalog, tools: make(map[string]bool, len(tools))}
	for _, t := range tools {
		r.tools[t] = true
	}
	return r
}

// Pending returns planned actions with no matching record. A record
// completes an action when it names a tracked tool and the same service,
// whether or not the call succeeded.
func (r *Reconciler) Pending(planned []Action, records []Record) []Action {
	done := r.match(planned, records, false)
	var out []Action
	for i, a := range planned {
		if !done[i] {
			out = append(out, a)
		}
	}
	return out
}

// Split partitions planned actions into those confirmed by a successful
// record and the rest.
func (r *Reconciler) Split(planned []Action, records []Record) (succeeded, rest []Action) {
	ok := r.match(planned, records, true)
	for i, a := range planned {
		if ok[i] {
			succeeded = append(succeeded, a)
		} else {
			rest = append(rest, a)
		}
	}
	return succeeded, rest
}

// match pairs each record with at most one planned action, preferring an
// action at the same time.
func (r *Reconciler) match(planned []Action, records []Record, successOnly bool) map[int]bool {
	done := make(map[int]bool)
	for _, rec := range records {
		if !r.tools[rec.Tool] || (successOnly && !rec.Success) {
			continue
		}
		best := -1
		for i, a := range planned {
			if done[i] || !r.catalog.Same(rec.Service(), a.Service) {
				continue
			}
			if best < 0 {
				best = i
			}
			if t, ok := NormalizeTime(rec.Time()); ok && t == a.Time {
				best = i
				break
			}
		}
		if best >= 0 {
			done[best] = true
		}
	}
	return done
}
