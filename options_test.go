package dit

import "testing"

func TestToOptionsOmitsDefaults(t *testing.T) {
	o := DefaultTransferOptions()
	if opts := o.ToOptions(); opts != nil {
		t.Errorf("expected no options for defaults, got %+v", opts)
	}
}

func TestToOptionsNonDefault(t *testing.T) {
	o := DefaultTransferOptions()
	o.BlockSize = 1428
	o.ResendTimeoutMS = 2000
	size := int64(123456)
	o.TransferSize = &size
	o.Rollover = RolloverToOne

	got := o.ToOptions()
	want := map[string]string{
		"blksize":  "1428",
		"timeout":  "2000",
		"tsize":    "123456",
		"rollover": "1",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d options, want %d: %+v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("option %s: got %q, want %q", k, got[k], v)
		}
	}
}

func TestTransferOptionsFromMap(t *testing.T) {
	opts := Options{
		"blksize":  "1024",
		"timeout":  "3000",
		"tsize":    "42",
		"rollover": "0",
		"unknown":  "ignored",
	}
	t2 := TransferOptionsFromMap(opts)
	if t2.BlockSize != 1024 {
		t.Errorf("BlockSize: got %d, want 1024", t2.BlockSize)
	}
	if t2.ResendTimeoutMS != 3000 {
		t.Errorf("ResendTimeoutMS: got %d, want 3000", t2.ResendTimeoutMS)
	}
	if t2.TransferSize == nil || *t2.TransferSize != 42 {
		t.Errorf("TransferSize: got %v, want 42", t2.TransferSize)
	}
	if t2.Rollover != RolloverToZero {
		t.Errorf("Rollover: got %v, want RolloverToZero", t2.Rollover)
	}
}

func TestTransferOptionsFromMapUnparseableLeavesDefault(t *testing.T) {
	t2 := TransferOptionsFromMap(Options{"blksize": "not-a-number"})
	if t2.BlockSize != DefaultBlockSize {
		t.Errorf("got %d, want default %d", t2.BlockSize, DefaultBlockSize)
	}
}

func TestTransferOptionsFromMapEmpty(t *testing.T) {
	t2 := TransferOptionsFromMap(nil)
	if t2 != DefaultTransferOptions() {
		t.Errorf("got %+v, want defaults", t2)
	}
}

func TestParseRolloverFlag(t *testing.T) {
	tests := []struct {
		in   string
		want Rollover
		ok   bool
	}{
		{"none", RolloverNone, true},
		{"zero", RolloverToZero, true},
		{"one", RolloverToOne, true},
		{"two", RolloverNone, false},
	}
	for _, tt := range tests {
		got, ok := ParseRolloverFlag(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRolloverFlag(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
