package template

import "testing"

func TestProviderGetsDefaultTemplate(t *testing.T) {
	p := NewProvider()
	tpl, err := p.Get("T1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(tpl.Stocks) == 0 || len(tpl.Traders) == 0 {
		t.Fatal("expected default template to carry stocks and traders")
	}
}

func TestProviderUnknownIdFails(t *testing.T) {
	p := NewProvider()
	if _, err := p.Get("nope"); err == nil {
		t.Fatal("expected error for unknown template id")
	}
}

func TestProviderRegisterOverridesTemplate(t *testing.T) {
	p := NewProvider()
	p.Register(Template{Id: "custom", Name: "Custom"})
	tpl, err := p.Get("custom")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tpl.Name != "Custom" {
		t.Fatalf("Name = %q, want Custom", tpl.Name)
	}
}
