//go:build !linux

package native

func openUInput(options) (injectorCloser, error) {
	return nil, ErrUnsupported
}
