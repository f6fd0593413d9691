package cwidget

import (
	"errors"
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	OnChanged   func(T)
	OnSubmitted func(T)

	Validator func(string) (T, error)
}

func newInput[T any](label, placeholder string, defaultValue T) *Input[T] {
	input := &Input[T]{
		LabelText:    label,
		Placeholder:  placeholder,
		DefaultValue: defaultValue,
	}

	input.labelWidget = widget.NewLabel(fmt.Sprintf("%s: %v", label, defaultValue))
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.entryWidget.OnChanged = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil {
			if input.OnChanged != nil {
				input.OnChanged(res)
			}
			input.labelWidget.SetText(fmt.Sprintf("%s: %v", label, res))
		}
	}

	input.entryWidget.OnSubmitted = func(s string) {
		res, err := input.Validator(s)
		input.SetError(err)

		if err == nil && input.OnSubmitted != nil {
			input.OnSubmitted(res)
		}
	}

	input.ExtendBaseWidget(input)

	return input
}

// NewIntInput accepts positive integers; an empty entry means the default.
func NewIntInput(label, placeholder string, defaultValue int, onChanged func(int)) *Input[int] {
	input := newInput(label, placeholder, defaultValue)
	input.OnChanged = onChanged
	input.Validator = PositiveInt(defaultValue)
	return input
}

// NewRangeInput edits an integer control value within [min, max]. The
// value is applied on submit so each keystroke does not reach the device.
func NewRangeInput(label string, min, max, current int64, onSubmitted func(int64)) *Input[int64] {
	input := newInput(label, fmt.Sprintf("%d..%d", min, max), current)
	input.OnSubmitted = onSubmitted
	input.Validator = IntRange(min, max, current)
	return input
}

func PositiveInt(defaultValue int) func(string) (int, error) {
	return func(s string) (int, error) {
		if s == "" {
			return defaultValue, nil
		}

		res, err := strconv.Atoi(s)
		if err != nil {
			return defaultValue, errors.New("not a number")
		}
		if res <= 0 {
			return defaultValue, errors.New("must be positive")
		}

		return res, nil
	}
}

func IntRange(min, max, defaultValue int64) func(string) (int64, error) {
	return func(s string) (int64, error) {
		if s == "" {
			return defaultValue, nil
		}

		res, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return defaultValue, errors.New("not a number")
		}
		if max > min && (res < min || res > max) {
			return defaultValue, fmt.Errorf("out of range %d..%d", min, max)
		}

		return res, nil
	}
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	item.errorWidget.Hidden = err == nil
	if err != nil {
		item.errorWidget.SetText(err.Error())
	}
}

func (item *Input[T]) SetText(text string) {
	item.entryWidget.SetText(text)
}
