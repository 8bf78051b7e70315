package ingest

import (
	"testing"
)

func TestCSVSourceParse(t *testing.T) {
	data := []byte(`resource_id,demand_id,distance_km,time_min
X,A,5,15
X,B,9,27
Y,A,6,18
Y,B,4,12
Y,C,3,9
X,,1
Y,,2
`)
	in, err := CSVSource{}.Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := in.Distances["X"]["B"]; got != 9 {
		t.Fatalf("distance X->B: %v", got)
	}
	if got := in.Times["Y"]["C"]; got != 9 {
		t.Fatalf("time Y->C: %v", got)
	}
	if in.Capacities["X"] != 1 || in.Capacities["Y"] != 2 {
		t.Fatalf("capacities: %v", in.Capacities)
	}
}

func TestCSVSourceNoHeaderNoTimes(t *testing.T) {
	data := []byte("X,A,5\nY,A,6\n")
	in, err := CSVSource{}.Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(in.Distances) != 2 {
		t.Fatalf("distances: %v", in.Distances)
	}
	if in.Times != nil {
		t.Fatalf("times should be omitted: %v", in.Times)
	}
	if in.Capacities != nil {
		t.Fatalf("capacities should be omitted: %v", in.Capacities)
	}
}

func TestCSVSourceRejectsBadRows(t *testing.T) {
	// The first row doubles as a possible header, so the bad rows come second.
	cases := []string{
		"X,A,1\nX,B\n",           // too few fields
		"X,A,1\nX,B,-5\n",        // negative distance
		"X,A,1\n,B,5\n",          // empty resource
		"X,A,1\nX,,notanumber\n", // bad capacity
		"X,A,1\nX,B,5,bad\n",     // bad time
	}
	for _, c := range cases {
		if _, err := (CSVSource{}).Parse([]byte(c)); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}
