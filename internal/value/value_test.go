package value

import "testing"

func TestGetAndIndex(t *testing.T) {
	obj := Object(Pair{Key: "title", Value: String("hello")}, Pair{Key: "n", Value: Number(3)})
	if s, ok := obj.Get("title").String(); !ok || s != "hello" {
		t.Errorf("Get(title) = %q, %v", s, ok)
	}
	if !obj.Get("missing").IsNull() {
		t.Error("Get(missing) should be Null")
	}

	arr := Array(String("a"), String("b"), String("c"))
	if s, _ := arr.Index(1).String(); s != "b" {
		t.Errorf("Index(1) = %q", s)
	}
	if !arr.Index(99).IsNull() {
		t.Error("Index(out-of-range) should be Null")
	}
	if !Null.Get("x").IsNull() || !Null.Index(0).IsNull() {
		t.Error("Get/Index on non-Object/Array should be Null")
	}
}

func TestCoerceNumber(t *testing.T) {
	cases := []struct {
		in   Value
		want float64
		ok   bool
	}{
		{Number(4.5), 4.5, true},
		{String("4.5"), 4.5, true},
		{String("nope"), 0, false},
		{Bool(true), 0, false},
		{Null, 0, false},
	}
	for _, c := range cases {
		got, ok := CoerceNumber(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("CoerceNumber(%v) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestCoerceString(t *testing.T) {
	if s, ok := CoerceString(Number(3)); !ok || s != "3" {
		t.Errorf("CoerceString(3) = %q, %v", s, ok)
	}
	if s, ok := CoerceString(Bool(true)); !ok || s != "true" {
		t.Errorf("CoerceString(true) = %q, %v", s, ok)
	}
	if _, ok := CoerceString(Null); ok {
		t.Error("CoerceString(Null) should fail")
	}
}

func TestEqual(t *testing.T) {
	a := Object(Pair{Key: "x", Value: Number(1)}, Pair{Key: "y", Value: Number(2)})
	b := Object(Pair{Key: "y", Value: Number(2)}, Pair{Key: "x", Value: Number(1)})
	if !Equal(a, b) {
		t.Error("objects with same keys in different order should be equal")
	}
	if Equal(Number(1), String("1")) {
		t.Error("different kinds should never be equal")
	}
	if !Equal(Array(Number(1), Number(2)), Array(Number(1), Number(2))) {
		t.Error("equal arrays should compare equal")
	}
}

func TestCompareAndSort(t *testing.T) {
	if cmp, ok := Compare(Number(1), String("a")); ok || cmp != 0 {
		t.Error("mixed-kind Compare should return ok=false")
	}
	vals := []Value{Number(3), Number(1), Number(2)}
	SortValues(vals)
	for i, want := range []float64{1, 2, 3} {
		if n, _ := vals[i].Number(); n != want {
			t.Errorf("SortValues[%d] = %v, want %v", i, n, want)
		}
	}
}

func TestTruthy(t *testing.T) {
	if Truthy(Null) {
		t.Error("Null should be falsy")
	}
	if Truthy(Bool(false)) {
		t.Error("false should be falsy")
	}
	if !Truthy(Number(0)) {
		t.Error("Number(0) should be truthy (total predicate, not numeric-zero convention)")
	}
	if !Truthy(String("")) {
		t.Error("empty string should be truthy")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	v := Object(
		Pair{Key: "title", Value: String("hi")},
		Pair{Key: "tags", Value: Array(String("a"), String("b"))},
		Pair{Key: "count", Value: Number(2)},
		Pair{Key: "ok", Value: Bool(true)},
		Pair{Key: "missing", Value: Null},
	)
	raw, err := ToJSON(v)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	back := FromJSON(raw)
	if !Equal(v, back) {
		t.Errorf("round trip mismatch: %s", raw)
	}
}

func TestFromJSONInvalid(t *testing.T) {
	if !FromJSON([]byte("not json")).IsNull() {
		t.Error("invalid JSON should decode to Null")
	}
}

func TestPretty(t *testing.T) {
	s, err := Pretty(Object(Pair{Key: "a", Value: Number(1)}))
	if err != nil {
		t.Fatalf("Pretty: %v", err)
	}
	if s == "" {
		t.Error("Pretty should not be empty")
	}
}

func TestNodeMapsToNullInJSON(t *testing.T) {
	raw, err := ToJSON(Node(nil))
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("Node should marshal to null, got %s", raw)
	}
}
