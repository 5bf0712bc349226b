// Package native is the boundary between the remapping engine and the
// desktop it drives.
//
// # Capabilities
//
// An Injector emits key-down and key-up events for X11 keycodes. A Desktop
// reads and warps the pointer, hides the cursor and tracks or changes the
// focused window. A PointerSource delivers pointer motion and button edges.
// Native bundles an Injector and a Desktop behind one Close.
//
// # Backends
//
//   - BackendX11: keys through the XTEST extension, pointer and windows
//     through the core protocol and EWMH, cursor hiding through XFIXES.
//   - BackendUInput: keys through a virtual /dev/uinput keyboard, desktop
//     operations through X11.
//   - BackendDry: a Recorder that logs every call and touches nothing.
//
// Open picks one by name:
//
//	n, err := native.Open(native.BackendX11, native.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer n.Close()
package native
