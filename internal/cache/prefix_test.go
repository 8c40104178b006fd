package cache

import "testing"

func TestPrefixKey(t *testing.T) {
	cases := map[string]string{
		Groups.Key("4e6f"):       "group:4e6f",
		Events.Key("abc"):        "event:abc",
		Clicks.Key("12-1.2.3.4"): "click:12-1.2.3.4",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
