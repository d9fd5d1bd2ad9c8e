package types

import "testing"

func TestBlockListScanValueRoundTrip(t *testing.T) {
	blocks := BlockList{
		{Title: "Service notice", Body: "Surge pricing active downtown", Data: map[string]string{"zone": "dt-1"}},
		{Title: "Aviso", Body: "Tarifa dinámica activa"},
	}

	value, err := blocks.Value()
	if err != nil {
		t.Fatalf("unexpected value error: %v", err)
	}

	var decoded BlockList
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(decoded))
	}
	if decoded.First().Title != "Service notice" {
		t.Fatalf("first block should be the delivery payload, got %q", decoded.First().Title)
	}
	if decoded[0].Data["zone"] != "dt-1" {
		t.Fatal("block data map should survive the round trip")
	}
}

func TestBlockListFirstEmpty(t *testing.T) {
	var blocks BlockList
	if !blocks.First().IsEmpty() {
		t.Fatal("empty list should yield an empty first block")
	}
}

func TestBlockIsEmpty(t *testing.T) {
	if (MessageBlock{Title: "  "}).IsEmpty() == false {
		t.Fatal("whitespace-only block should be empty")
	}
	if (MessageBlock{Body: "hello"}).IsEmpty() {
		t.Fatal("block with body is not empty")
	}
}
