package auth

import (
	"context"
	"testing"
)

func TestStaticKeyProvider(t *testing.T) {
	secret := []byte("shared-secret")
	provider := NewStaticKeyProvider(secret)

	key, err := provider.GetKey(context.Background(), "flytoday")
	if err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}

	keyBytes, ok := key.([]byte)
	if !ok {
		t.Fatalf("GetKey() returned %T, want []byte", key)
	}
	if string(keyBytes) != string(secret) {
		t.Errorf("GetKey() = %v, want %v", string(keyBytes), string(secret))
	}
}

func TestStaticKeyProvider_IgnoresKeyID(t *testing.T) {
	provider := NewStaticKeyProvider([]byte("shared-secret"))

	k1, _ := provider.GetKey(context.Background(), "flytoday")
	k2, _ := provider.GetKey(context.Background(), "alibaba")

	if string(k1.([]byte)) != string(k2.([]byte)) {
		t.Error("StaticKeyProvider returned different keys for different key IDs")
	}
}
