package form

import (
	"strconv"

	"github.com/goliatone/go-formlogic/pkg/condition"
	"github.com/goliatone/go-formlogic/pkg/fieldpath"
	"github.com/goliatone/go-formlogic/pkg/logic"
	"github.com/goliatone/go-formlogic/pkg/validation"
)

// process runs one recomputation pass for a batch of events. Callers hold
// f.mu.
func (f *Form) process(batch []event) {
	if f.closed {
		return
	}

	var (
		changed  []string
		resolved []string
		status   bool
		all      bool
	)
	// status events carry no payload: the aggregate below picks up the new
	// submitting flag or page.
	for _, ev := range batch {
		for _, p := range ev.paths {
			if f.ownWrite(p) {
				continue
			}
			changed = append(changed, p)
		}
		resolved = append(resolved, ev.resolved...)
		status = status || ev.status
		all = all || ev.all
	}
	f.selfWrites = nil
	if len(changed) == 0 && len(resolved) == 0 && !status && !all {
		return
	}

	f.values = f.store.Snapshot()

	forced := make(map[*instance]bool)
	for _, inst := range f.syncArrays(changed, all) {
		forced[inst] = true
	}

	owners := append([]string(nil), resolved...)
	for inst := range forced {
		if len(inst.derivations) > 0 {
			owners = append(owners, inst.path)
		}
	}
	res := f.engine.Settle(env{f}, changed, owners, all)
	for _, owner := range res.Succeeded {
		if inst, ok := f.byPath[owner]; ok {
			inst.derr = nil
		}
	}
	for owner, err := range res.Errors {
		if inst, ok := f.byPath[owner]; ok {
			inst.derr = err
		}
	}
	if len(res.Written) > 0 {
		// a derivation may resize an array
		for _, inst := range f.syncArrays(res.Written, false) {
			forced[inst] = true
		}
	}
	changed = append(changed, res.Written...)

	resolvedSet := make(map[string]bool, len(resolved))
	for _, owner := range resolved {
		resolvedSet[owner] = true
	}

	for _, inst := range f.order {
		if inst.gone {
			continue
		}
		ch := logic.Changes{Paths: changed, Resolved: resolvedSet[inst.path], All: all || forced[inst]}
		if inst.applier.Affected(ch) {
			inst.own = inst.applier.Apply(f.snapshot(inst.scope()))
		}
		f.inherit(inst)
	}

	f.validate()

	if next := f.aggregate(); next != f.status {
		f.status = next
		for _, inst := range f.order {
			if inst.applier.Affected(logic.Changes{FormStatus: true}) {
				inst.own = inst.applier.Apply(f.snapshot(inst.scope()))
			}
			f.inherit(inst)
		}
	}
}

// ownWrite reports whether a store notification only echoes a write made
// by the previous pass.
func (f *Form) ownWrite(path string) bool {
	written, ok := f.selfWrites[path]
	if !ok {
		return false
	}
	return fieldpath.Equal(f.store.Get(path), written)
}

func (f *Form) inherit(inst *instance) {
	inst.state = inst.own
	if inst.parent != nil {
		inst.state = inst.state.Inherit(inst.parent.state)
	}
}

func (f *Form) validate() {
	for _, inst := range f.order {
		inst.issues = nil
		if inst.gone || !inst.node.Valued() {
			continue
		}
		snap := f.snapshot(inst.scope())
		inst.issues = validation.Validate(inst.node.Validators, snap)
		if inst.state.Required && validation.IsEmpty(snap.Lookup(condition.SelfRef)) && !hasKind(inst.issues, validation.KindRequired) {
			inst.issues = append([]validation.Issue{validation.RequiredIssue(inst.path)}, inst.issues...)
		}
	}
}

func hasKind(issues []validation.Issue, kind string) bool {
	for _, issue := range issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

func (f *Form) aggregate() condition.FormStatus {
	status := condition.FormStatus{Submitting: f.submitting}
	for _, inst := range f.order {
		if len(inst.issues) == 0 || !f.counts(inst) {
			continue
		}
		status.Invalid = true
		if f.def.PageCount == 0 || inst.node.Page == f.page {
			status.PageInvalid = true
		}
	}
	return status
}

func (f *Form) snapshot(scope condition.Scope) condition.Snapshot {
	return condition.Snapshot{
		Values:    f.values,
		FieldPath: scope.FieldPath,
		ItemPath:  scope.ItemPath,
		Form:      f.status,
		Async:     asyncSource{f},
		Logger:    f.logger,
	}
}

// env adapts the form to the derivation engine. Writes go to the store and
// to the pass snapshot so later derivations see them.
type env struct{ f *Form }

func (e env) Get(path string) any {
	return fieldpath.Lookup(e.f.values, path)
}

func (e env) Set(path string, value any) error {
	if e.f.selfWrites == nil {
		e.f.selfWrites = make(map[string]any)
	}
	e.f.selfWrites[path] = fieldpath.Clone(value)
	if err := e.f.store.Set(path, value); err != nil {
		delete(e.f.selfWrites, path)
		return err
	}
	_ = fieldpath.Set(e.f.values, path, fieldpath.Clone(value))
	return nil
}

func (e env) Snapshot(scope condition.Scope) condition.Snapshot {
	return e.f.snapshot(scope)
}

// asyncSource routes HTTP conditions to the form's resolver. Each field
// instance owns one slot per condition.
type asyncSource struct{ f *Form }

func (a asyncSource) Resolve(c *condition.HTTP, snap condition.Snapshot) any {
	req, err := c.Request(snap)
	if err != nil {
		snap.Log().Warn("http condition request", "field", snap.FieldPath, "error", err)
		return c.Config.PendingValue
	}
	id := snap.FieldPath + "#" + strconv.FormatUint(c.ID(), 10)
	if inst, ok := a.f.byPath[snap.FieldPath]; ok {
		if inst.slots == nil {
			inst.slots = make(map[string]struct{})
		}
		inst.slots[id] = struct{}{}
	}
	return a.f.resolver.Lookup(id, c.Template, req)
}
