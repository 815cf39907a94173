package prompt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-formlogic/pkg/form"
	"github.com/goliatone/go-formlogic/pkg/schema"
)

// Field types with a dedicated prompt. Everything else is a text input.
const (
	typeCheckbox = "checkbox"
	typeNumber   = "number"
	typeSelect   = "select"
)

// maxAttempts bounds how often a field is asked again while it reports
// issues.
const maxAttempts = 3

// Filler walks a form in declaration order and asks for every visible,
// editable field. Field state is re-read after each answer so logic rules
// can reveal or hide later fields.
type Filler struct {
	form   *form.Form
	driver Driver
}

// NewFiller binds a driver to a form.
func NewFiller(f *form.Form, d Driver) *Filler {
	return &Filler{form: f, driver: d}
}

// Run prompts until no unanswered field is left.
func (fl *Filler) Run(ctx context.Context) error {
	asked := make(map[string]bool)
	for {
		view, ok := fl.next(asked)
		if !ok {
			return nil
		}
		asked[view.Path] = true

		if view.Type == schema.TypeArray {
			if err := fl.items(ctx, view); err != nil {
				return err
			}
			continue
		}
		if err := fl.ask(ctx, view); err != nil {
			return err
		}
	}
}

func (fl *Filler) next(asked map[string]bool) (form.FieldView, bool) {
	for _, view := range fl.form.Fields() {
		if asked[view.Path] || !promptable(view) {
			continue
		}
		return view, true
	}
	return form.FieldView{}, false
}

func promptable(v form.FieldView) bool {
	if schema.Valueless(v.Type) || v.Type == schema.TypeGroup {
		return false
	}
	return !v.State.Hidden && !v.State.Disabled && !v.State.Readonly
}

// items asks for the item count of an array and adds or removes trailing
// items to match.
func (fl *Filler) items(ctx context.Context, view form.FieldView) error {
	current := 0
	if items, ok := view.Value.([]any); ok {
		current = len(items)
	}
	answer, err := fl.driver.Input(ctx, InputConfig{
		Message:   fmt.Sprintf("How many %s?", label(view)),
		Default:   strconv.Itoa(current),
		Help:      view.Description,
		Validator: validCount,
	})
	if err != nil {
		return err
	}
	want, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return fmt.Errorf("prompt: %s: %w", view.Path, err)
	}
	for current < want {
		if _, err := fl.form.AddItem(view.Path); err != nil {
			return err
		}
		current++
	}
	for current > want {
		current--
		if err := fl.form.RemoveItem(view.Path, current); err != nil {
			return err
		}
	}
	return fl.form.Wait(ctx)
}

func (fl *Filler) ask(ctx context.Context, view form.FieldView) error {
	for attempt := 1; ; attempt++ {
		value, err := fl.answer(ctx, view)
		if err != nil {
			return err
		}
		if err := fl.form.SetValue(view.Path, value); err != nil {
			return err
		}
		if err := fl.form.Wait(ctx); err != nil {
			return err
		}

		updated, ok := fl.form.Field(view.Path)
		if !ok || len(updated.Errors) == 0 || !promptable(updated) {
			return nil
		}
		for _, msg := range updated.Errors {
			if err := fl.driver.Info(ctx, fmt.Sprintf("%s: %s", label(view), msg)); err != nil {
				return err
			}
		}
		if attempt >= maxAttempts {
			return nil
		}
		view = updated
	}
}

func (fl *Filler) answer(ctx context.Context, view form.FieldView) (any, error) {
	message := label(view)
	if view.State.Required {
		message += " *"
	}

	switch {
	case view.Type == typeCheckbox:
		current, _ := view.Value.(bool)
		return fl.driver.Confirm(ctx, ConfirmConfig{Message: message, Default: current, Help: view.Description})

	case view.Type == typeSelect || len(view.Options) > 0:
		labels := make([]string, len(view.Options))
		def := -1
		for i, opt := range view.Options {
			labels[i] = opt.Label
			if fmt.Sprint(opt.Value) == fmt.Sprint(view.Value) {
				def = i
			}
		}
		idx, err := fl.driver.Select(ctx, SelectConfig{Message: message, Options: labels, DefaultIndex: def, Help: view.Description})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(view.Options) {
			return nil, nil
		}
		return view.Options[idx].Value, nil

	case view.Type == typeNumber:
		answer, err := fl.driver.Input(ctx, InputConfig{Message: message, Default: text(view.Value), Help: view.Description, Validator: validNumber})
		if err != nil {
			return nil, err
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return nil, nil
		}
		return strconv.ParseFloat(answer, 64)
	}

	answer, err := fl.driver.Input(ctx, InputConfig{Message: message, Default: text(view.Value), Help: view.Description})
	if err != nil {
		return nil, err
	}
	return answer, nil
}

func label(v form.FieldView) string {
	if v.Label != "" {
		return v.Label
	}
	return v.Path
}

func text(v any) string {
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func validNumber(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("%q is not a number", s)
	}
	return nil
}

func validCount(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("%q is not a valid count", s)
	}
	return nil
}
