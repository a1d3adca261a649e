package toast

import (
	"context"
	"time"

	"github.com/jmylchreest/campusbell/internal/model"
)

// Variant is the visual style of a toast.
type Variant string

const (
	VariantDefault Variant = "default"
	VariantSuccess Variant = "success"
	VariantInfo    Variant = "info"
)

// DefaultDuration is how long a toast stays visible.
const DefaultDuration = 5 * time.Second

// VariantFor maps a notification priority to a toast variant.
// Unknown priorities, including the empty string, fall back to VariantDefault.
func VariantFor(priority string) Variant {
	switch priority {
	case model.PriorityHigh:
		return VariantSuccess
	case model.PriorityLow:
		return VariantInfo
	default:
		return VariantDefault
	}
}

// Action is a single clickable affordance on a toast.
type Action struct {
	Label      string
	OnActivate func()
}

// Options describes how a toast is rendered.
type Options struct {
	Variant     Variant
	Duration    time.Duration
	Description string
	Action      *Action
}

// Toaster shows toasts.
type Toaster interface {
	Show(ctx context.Context, message string, opts Options) error
}
