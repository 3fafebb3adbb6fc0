package env

import "testing"

func TestGetFallsBackWhenBlank(t *testing.T) {
	t.Setenv("SHOPCART_TEST_VALUE", "   ")
	if got := Get("SHOPCART_TEST_VALUE", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("SHOPCART_TEST_VALUE", " console ")
	if got := Get("SHOPCART_TEST_VALUE", "json"); got != "console" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("SHOPCART_TEST_FLAG", "true")
	if !Bool("SHOPCART_TEST_FLAG", false) {
		t.Fatal("expected true")
	}
	t.Setenv("SHOPCART_TEST_FLAG", "nope")
	if !Bool("SHOPCART_TEST_FLAG", true) {
		t.Fatal("malformed value should return fallback")
	}
}
