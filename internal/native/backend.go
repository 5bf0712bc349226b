package native

import (
	"errors"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendX11    = "x11"
	BackendUInput = "uinput"
	BackendDry    = "dry"
)

// Backends lists the accepted backend names.
func Backends() []string {
	return []string{BackendX11, BackendUInput, BackendDry}
}

// Open creates the named backend.
func Open(name string, opts ...Option) (Native, error) {
	o := buildOptions(opts)

	switch strings.ToLower(strings.TrimSpace(name)) {
	case BackendX11, "":
		n, err := openX11(o)
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", BackendX11, err)
		}
		return n, nil

	case BackendUInput:
		inj, err := openUInput(o)
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", BackendUInput, err)
		}
		desk, err := openX11(o)
		if err != nil {
			_ = inj.Close()
			return nil, fmt.Errorf("open %s backend desktop: %w", BackendUInput, err)
		}
		return &composite{Injector: inj, Desktop: desk, closers: []closer{inj, desk}}, nil

	case BackendDry:
		return NewRecorder(o.logger), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

type closer interface {
	Close() error
}

// injectorCloser is an Injector with its own lifetime.
type injectorCloser interface {
	Injector
	closer
}

// composite pairs an Injector from one backend with a Desktop from another.
type composite struct {
	Injector
	Desktop
	closers []closer
}

// Close closes every part, reporting all failures.
func (c *composite) Close() error {
	var errs []error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
