package dispatch

import (
	"errors"
	"sync"

	"github.com/dshills/panpad/internal/keys"
)

type sent struct {
	op    Op
	codes []keys.ScanCode
}

type recordingSender struct {
	mu     sync.Mutex
	events []sent
	fail   bool
}

func (r *recordingSender) SendKeysDown(codes []keys.ScanCode) error {
	return r.record(OpDown, codes)
}

func (r *recordingSender) SendKeysUp(codes []keys.ScanCode) error {
	return r.record(OpUp, codes)
}

func (r *recordingSender) record(op Op, codes []keys.ScanCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{op: op, codes: append([]keys.ScanCode(nil), codes...)})
	if r.fail {
		return errors.New("injection failed")
	}
	return nil
}

func (r *recordingSender) snapshot() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.events...)
}

// balance returns downs minus ups per code.
func (r *recordingSender) balance() map[keys.ScanCode]int {
	out := make(map[keys.ScanCode]int)
	for _, e := range r.snapshot() {
		for _, c := range e.codes {
			if e.op == OpDown {
				out[c]++
			} else {
				out[c]--
			}
		}
	}
	return out
}

func sameCodes(got []keys.ScanCode, want ...keys.ScanCode) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
