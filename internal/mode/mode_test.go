package mode

import (
	"sync"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"mock", Mock, false},
		{"live", Live, false},
		{"LIVE", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("Parse(%q) = (%q, %v), want (%q, err=%v)", tt.in, got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestCellSet(t *testing.T) {
	c := New(Live)
	if c.Get() != Live {
		t.Fatalf("Get() = %q, want live", c.Get())
	}

	if m, err := c.Set("mock"); err != nil || m != Mock {
		t.Errorf("Set(mock) = (%q, %v)", m, err)
	}
	if m, err := c.Set("bogus"); err == nil || m != Mock {
		t.Errorf("Set(bogus) = (%q, %v), want error and unchanged mode", m, err)
	}
	if c.Get() != Mock {
		t.Errorf("Get() = %q after rejected Set, want mock", c.Get())
	}
}

func TestCellConcurrent(t *testing.T) {
	c := New(Live)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.Set("mock")
			} else {
				c.Set("live")
			}
			_ = c.Get()
		}(i)
	}
	wg.Wait()

	if m := c.Get(); m != Mock && m != Live {
		t.Errorf("Get() = %q", m)
	}
}
