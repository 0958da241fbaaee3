package menu

import "testing"

func TestLookupResolvesNamesAndAliases(t *testing.T) {
	cases := []struct {
		name string
		want int
		ok   bool
	}{
		{name: "Cucumber roll", want: 0, ok: true},
		{name: "  sashimi ", want: 1, ok: true},
		{name: "Cucuber roll", want: 0, ok: true},
		{name: "greentea", want: 6, ok: true},
		{name: "Pizza", want: -1, ok: false},
	}
	for _, tc := range cases {
		got, ok := Lookup(tc.name)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Lookup(%q) = %d,%v want %d,%v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRecipesUseKnownStationsAndLocations(t *testing.T) {
	for idx := 0; idx < Len(); idx++ {
		item, err := At(idx)
		if err != nil {
			t.Fatalf("At(%d): %v", idx, err)
		}
		if len(item.Steps) == 0 {
			t.Fatalf("%s has no steps", item.Name)
		}
		for s, step := range item.Steps {
			if !step.Station.Valid() {
				t.Fatalf("%s step %d uses unknown station %q", item.Name, s, step.Station)
			}
			if step.Duration <= 0 {
				t.Fatalf("%s step %d has duration %d", item.Name, s, step.Duration)
			}
			for chef := 0; chef < 3; chef++ {
				if _, ok := Locate(step.Location, chef); !ok {
					t.Fatalf("%s step %d location %q unresolved", item.Name, s, step.Location)
				}
			}
		}
	}
	if _, err := At(Len()); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestLocateSpreadsSlottedLocations(t *testing.T) {
	first, _ := Locate("Chop", 0)
	second, _ := Locate("Chop", 1)
	if first == second {
		t.Fatalf("expected chefs 0 and 1 on different boards, both got %+v", first)
	}
	if loc, ok := Locate("Plate Dish", 2); !ok || loc != (Location{X: 91, Y: 34}) {
		t.Fatalf("Plate Dish for chef 2 = %+v,%v", loc, ok)
	}
	if loc, ok := Locate("Nowhere", 0); ok || loc != DefaultLocation {
		t.Fatalf("unknown location = %+v,%v", loc, ok)
	}
}
