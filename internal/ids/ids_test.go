package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndParsable(t *testing.T) {
	a := New()
	b := New()
	if len(a) != 26 {
		t.Fatalf("unexpected id length %d", len(a))
	}
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
	ts, ok := Time(a)
	if !ok {
		t.Fatalf("expected parsable id")
	}
	if time.Since(ts) > time.Minute {
		t.Fatalf("unexpected timestamp %v", ts)
	}
}

func TestTimeRejectsGarbage(t *testing.T) {
	if _, ok := Time("not-an-id"); ok {
		t.Fatalf("expected parse failure")
	}
}
