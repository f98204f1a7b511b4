package modules

import "github.com/astrasm/astra-go/internal/scripthost"

// fakeHost is a minimal scripthost.Host backed by a plain map, used by
// every test in this package in place of internal/scripthost/jsonhost's
// real JSON-backed host.
type fakeHost struct {
	opts map[string]any
}

func newFakeHost(opts map[string]any) *fakeHost {
	return &fakeHost{opts: opts}
}

func (h *fakeHost) OptionInt(name string) (int, bool) {
	v, ok := h.opts[name]
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

func (h *fakeHost) OptionStr(name string) (string, bool) {
	v, ok := h.opts[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (h *fakeHost) OptionBool(name string) (bool, bool) {
	v, ok := h.opts[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (h *fakeHost) OnSIGHUP(fn func()) {}

var _ scripthost.Host = (*fakeHost)(nil)
