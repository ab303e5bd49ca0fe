package eventbus

import "testing"

func TestNameResolver_Normalize(t *testing.T) {
	t.Parallel()

	r := NewNameResolver(
		WithEventNamePrefix("Shop"),
		WithEventNameSuffix("IntegrationEvent"),
		WithStripPrefix(true),
		WithStripSuffix(true),
	)

	tests := []struct {
		raw      string
		expected string
	}{
		{"OrderCreatedIntegrationEvent", "OrderCreated"},
		{"ShopOrderCreated", "OrderCreated"},
		{"ShopOrderCreatedIntegrationEvent", "OrderCreated"},
		{"OrderCreated", "OrderCreated"},
		{"OrderIntegrationEventIntegrationEvent", "Order"},
		{"ShopShopCart", "Cart"},
		{"IntegrationEvent", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := r.Normalize(tt.raw); got != tt.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.expected)
		}
	}
}

func TestNameResolver_StripDisabled(t *testing.T) {
	t.Parallel()

	r := NewNameResolver(
		WithEventNamePrefix("Shop"),
		WithEventNameSuffix("IntegrationEvent"),
	)

	if got := r.Normalize("ShopOrderCreatedIntegrationEvent"); got != "ShopOrderCreatedIntegrationEvent" {
		t.Errorf("expected name unchanged when stripping is disabled, got %q", got)
	}

	onlySuffix := NewNameResolver(WithEventNameSuffix("IntegrationEvent"), WithStripSuffix(true))
	if got := onlySuffix.Normalize("ShopOrderCreatedIntegrationEvent"); got != "ShopOrderCreated" {
		t.Errorf("unexpected %q", got)
	}
}

func TestNameResolver_NormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	resolvers := []NameResolver{
		NewNameResolver(),
		NewNameResolver(WithEventNameSuffix("Event"), WithStripSuffix(true)),
		NewNameResolver(WithEventNamePrefix("ab"), WithEventNameSuffix("ba"), WithStripPrefix(true), WithStripSuffix(true)),
		NewNameResolver(WithEventNamePrefix("a"), WithEventNameSuffix("a"), WithStripPrefix(true), WithStripSuffix(true)),
	}
	inputs := []string{
		"", "a", "aa", "aba", "abba", "ababab", "Event", "EventEvent", "OrderEventEvent",
		"abOrderba", "ababOrderbaba", "bab", "aaaOrderaaa", "IntegrationEvent",
	}

	for i, r := range resolvers {
		for _, in := range inputs {
			once := r.Normalize(in)
			if twice := r.Normalize(once); twice != once {
				t.Errorf("resolver %d: Normalize(Normalize(%q)) = %q, Normalize = %q", i, in, twice, once)
			}
		}
	}
}

func TestNameResolver_QualifiedSubscriberName(t *testing.T) {
	t.Parallel()

	r := NewNameResolver(
		WithEventNameSuffix("IntegrationEvent"),
		WithStripSuffix(true),
		WithSubscriberAppName("billing"),
	)

	if got := r.QualifiedSubscriberName("OrderCreatedIntegrationEvent"); got != "billing.OrderCreated" {
		t.Errorf("unexpected qualified name %q", got)
	}
	if r.SubscriberAppName() != "billing" {
		t.Errorf("unexpected app name %q", r.SubscriberAppName())
	}

	anonymous := NewNameResolver()
	if got := anonymous.QualifiedSubscriberName("OrderCreated"); got != "OrderCreated" {
		t.Errorf("expected bare name without app name, got %q", got)
	}
}
