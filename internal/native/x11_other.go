//go:build !linux

package native

func openX11(options) (Native, error) {
	return nil, ErrUnsupported
}
