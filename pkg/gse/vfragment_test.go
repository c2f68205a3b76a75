package gse

import "testing"

func TestFragmentCreateAndBytes(t *testing.T) {
	f, err := Create(10, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Free()
	if f.Length() != 10 {
		t.Fatalf("Length() = %d, want 10", f.Length())
	}
}

func TestFragmentCreateWithData(t *testing.T) {
	data := []byte("hello")
	f, err := CreateWithData(16, 0, 0, data)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Free()
	if string(f.Bytes()) != "hello" {
		t.Fatalf("Bytes() = %q, want %q", f.Bytes(), "hello")
	}
}

func TestFragmentCreateWithDataTooLong(t *testing.T) {
	if _, err := CreateWithData(2, 0, 0, []byte("abc")); err == nil {
		t.Fatal("expected error for oversized data")
	}
}

func TestFragmentShift(t *testing.T) {
	f, err := CreateWithData(16, 4, 4, []byte("0123456789"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Free()

	if err := f.Shift(-2, 0); err != nil {
		t.Fatal(err)
	}
	if f.Length() != 12 {
		t.Fatalf("Length() after Shift(-2,0) = %d, want 12", f.Length())
	}

	if err := f.Shift(0, -4); err != nil {
		t.Fatal(err)
	}
	if f.Length() != 8 {
		t.Fatalf("Length() after Shift(0,-4) = %d, want 8", f.Length())
	}
}

func TestFragmentShiftOutOfBounds(t *testing.T) {
	f, err := Create(4, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Free()
	if err := f.Shift(-1, 0); err == nil {
		t.Fatal("expected error shifting start below zero")
	}
	if err := f.Shift(0, 1); err == nil {
		t.Fatal("expected error shifting end beyond buffer")
	}
}

func TestFragmentShiftCrossedPointers(t *testing.T) {
	f, err := Create(4, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Free()
	if err := f.Shift(4, -1); err == nil {
		t.Fatal("expected error when start would exceed end")
	}
}

func TestDuplicateAtMostTwoWindows(t *testing.T) {
	f, err := CreateWithData(10, 0, 0, []byte("0123456789"))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.activeWindowsForTest(); got != 1 {
		t.Fatalf("activeWindows = %d, want 1", got)
	}

	dup, err := Duplicate(f, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.activeWindowsForTest(); got != 2 {
		t.Fatalf("activeWindows after Duplicate = %d, want 2", got)
	}
	if dup.Length() != 5 {
		t.Fatalf("Duplicate length = %d, want 5", dup.Length())
	}

	if _, err := Duplicate(f, 1); err == nil {
		t.Fatal("expected error opening a third window")
	}

	dup.Free()
	if got := f.activeWindowsForTest(); got != 1 {
		t.Fatalf("activeWindows after dup.Free = %d, want 1", got)
	}
	f.Free()
}

func TestFragmentFreeIsIdempotent(t *testing.T) {
	f, err := Create(4, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Free()
	f.Free() // must not panic
}

func TestFragmentCopyInRejectsSharedBuffer(t *testing.T) {
	f, err := CreateWithData(10, 0, 0, []byte("0123456789"))
	if err != nil {
		t.Fatal(err)
	}
	dup, err := Duplicate(f, 5)
	if err != nil {
		t.Fatal(err)
	}
	defer dup.Free()
	defer f.Free()

	if err := f.CopyIn([]byte("x")); err == nil {
		t.Fatal("expected CopyIn to reject a buffer with two active windows")
	}
}

func TestFragmentReset(t *testing.T) {
	f, err := Create(10, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Free()
	if err := f.Reset(2, 2); err != nil {
		t.Fatal(err)
	}
	if f.Length() != 14 {
		t.Fatalf("Length() after Reset = %d, want 14", f.Length())
	}
}
