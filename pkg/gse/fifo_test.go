package gse

import "testing"

func newTestContext(t *testing.T, payload string) *encapContext {
	t.Helper()
	f, err := CreateWithData(len(payload), 16, 8, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	return &encapContext{vfrag: f}
}

func TestFIFOPushPopOrder(t *testing.T) {
	f := newFIFO(2)
	a := newTestContext(t, "a")
	b := newTestContext(t, "b")

	if err := f.push(a); err != nil {
		t.Fatal(err)
	}
	if err := f.push(b); err != nil {
		t.Fatal(err)
	}
	if err := f.push(newTestContext(t, "c")); err == nil {
		t.Fatal("expected StatusFIFOFull on a third push")
	}

	head, err := f.peekHead()
	if err != nil {
		t.Fatal(err)
	}
	if head != a {
		t.Fatal("peekHead returned the wrong context")
	}
	if err := f.pop(); err != nil {
		t.Fatal(err)
	}
	head, err = f.peekHead()
	if err != nil {
		t.Fatal(err)
	}
	if head != b {
		t.Fatal("peekHead after pop returned the wrong context")
	}
	a.vfrag.Free()

	if err := f.pop(); err != nil {
		t.Fatal(err)
	}
	b.vfrag.Free()
	if f.size() != 0 {
		t.Fatalf("size() = %d, want 0", f.size())
	}
}

func TestFIFOPeekPopEmpty(t *testing.T) {
	f := newFIFO(1)
	if _, err := f.peekHead(); err == nil {
		t.Fatal("expected StatusFIFOEmpty")
	}
	if err := f.pop(); err == nil {
		t.Fatal("expected StatusFIFOEmpty")
	}
}

func TestFIFORelease(t *testing.T) {
	f := newFIFO(4)
	f.push(newTestContext(t, "x"))
	f.push(newTestContext(t, "y"))
	f.release()
	if f.size() != 0 {
		t.Fatalf("size() after release = %d, want 0", f.size())
	}
}
