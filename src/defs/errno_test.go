package defs

import "testing"

func TestErrorStrings(t *testing.T) {
	for _, e := range []Err_t{EINVAL, ENOMEM, ENOSPC, ENOENT, EIO, ENAMETOOLONG, EFAULT, ENOHEAP, EISDIR, ENOTDIR, ENOTEMPTY, EBUSY} {
		if e.Error() == "" {
			t.Errorf("Err_t(%d).Error() returned empty string", e)
		}
	}
}

func TestIs(t *testing.T) {
	if !Is(ENOENT, ENOENT) {
		t.Fatal("Is(ENOENT, ENOENT) should be true")
	}
	if Is(ENOENT, EINVAL) {
		t.Fatal("Is(ENOENT, EINVAL) should be false")
	}
}
